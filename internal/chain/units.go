package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// NativeDecimals 是链原生单位与业务代币共同使用的小数位数。
const NativeDecimals = 18

// ParseUnits 将用户输入的十进制数量转换为按 decimals 缩放的整数，
// 等价于 ethers 的 parseUnits。
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("数量不能为空")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("数量不能为负数: %s", amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("小数位数超过 %d 位: %s", decimals, amount)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("非法的数量: %s", amount)
	}
	return value, nil
}

// FormatUnits 将缩放整数还原为十进制字符串，去掉多余的尾零。
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quot, rem := new(big.Int).QuoRem(new(big.Int).Abs(value), scale, new(big.Int))

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	if rem.Sign() == 0 {
		return sign + quot.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*s", decimals, rem.String()), "0")
	return sign + quot.String() + "." + frac
}
