package table

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	molerrors "github.com/arkilian/molsystem/internal/errors"
)

// renderLiteral renders a default value as an SQL literal for DDL, where
// parameters cannot be bound.
func renderLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		if x > math.MaxInt64 {
			return "", invalidDefault(v)
		}
		return strconv.FormatUint(x, 10), nil
	case float32:
		return renderFloat(float64(x), v)
	case float64:
		return renderFloat(x, v)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(x)) + "'", nil
	}
	return "", invalidDefault(v)
}

func renderFloat(f float64, v any) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", invalidDefault(v)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

func invalidDefault(v any) error {
	return molerrors.NewValidationError(molerrors.CodeInvalidType,
		fmt.Sprintf("default value %v of type %T cannot be stored", v, v))
}

// parseLiteral turns the default text reported by the catalog back into a
// value. Text that is not a plain literal (CURRENT_TIMESTAMP, expressions)
// is returned unchanged.
func parseLiteral(text string) any {
	s := strings.TrimSpace(text)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	upper := strings.ToUpper(s)

	switch {
	case upper == "NULL":
		return nil
	case upper == "TRUE":
		return int64(1)
	case upper == "FALSE":
		return int64(0)
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	case len(s) >= 3 && (s[0] == 'X' || s[0] == 'x') && s[1] == '\'' && s[len(s)-1] == '\'':
		if b, err := hex.DecodeString(s[2 : len(s)-1]); err == nil {
			return b
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
