package metrics

import "strconv"

func statusLabel(code int) string {
	if code == 0 {
		code = 200
	}
	return strconv.Itoa(code)
}
