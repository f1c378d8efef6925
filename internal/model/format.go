package model

import (
	"fmt"
	"math"
	"strconv"
)

// FormatMoney renders a USD amount with a K/M/B suffix, two decimals.
func FormatMoney(amount float64) string {
	switch {
	case amount >= 1e9:
		return fmt.Sprintf("$%.2fB", amount/1e9)
	case amount >= 1e6:
		return fmt.Sprintf("$%.2fM", amount/1e6)
	case amount >= 1e3:
		return fmt.Sprintf("$%.2fK", amount/1e3)
	default:
		return fmt.Sprintf("$%.2f", amount)
	}
}

// FormatNumber rounds to an integer and inserts thousands separators.
func FormatNumber(n float64) string {
	v := int64(math.Round(n))
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	out := make([]byte, 0, len(digits)+len(digits)/3+1)
	if neg {
		out = append(out, '-')
	}
	for i := 0; i < len(digits); i++ {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return string(out)
}

// FormatPnL renders a signed PnL as "+$1,234" / "-$1,234".
func FormatPnL(pnl float64) string {
	if pnl >= 0 {
		return "+$" + FormatNumber(pnl)
	}
	return "-$" + FormatNumber(-pnl)
}

// ShortAddress abbreviates a wallet address to "0x12345678...9abcdef0".
func ShortAddress(addr string) string {
	if len(addr) <= 18 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-8:]
}
