package model

// ChipPackage 充值套餐（价格以服务端为准，不信任客户端金额）
type ChipPackage struct {
	Id    string
	Price int64 // KRW
	Chips int64
}

// MaxPaymentAmount 单笔支付上限
const MaxPaymentAmount = 100000

// ChipPackages 套餐表
var ChipPackages = map[string]ChipPackage{
	"pkg1": {Id: "pkg1", Price: 3300, Chips: 10},
	"pkg2": {Id: "pkg2", Price: 5500, Chips: 30},
	"pkg3": {Id: "pkg3", Price: 11000, Chips: 60},
	"pkg4": {Id: "pkg4", Price: 33000, Chips: 200},
	"pkg5": {Id: "pkg5", Price: 55000, Chips: 350},
}

// GetPackage 查询套餐
func GetPackage(id string) (ChipPackage, bool) {
	p, ok := ChipPackages[id]
	return p, ok
}

// SubscriptionPlanChips 订阅套餐每月发放的蓝筹码数量
var SubscriptionPlanChips = map[string]int64{
	"basic":    10,
	"standard": 30,
	"premium":  60,
}
