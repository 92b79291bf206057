package condition

import "strings"

// Normalize rewrites the JavaScript-flavoured operators found in older flows
// into HCL: "===" and "!==" become "==" and "!=", and single-quoted string
// literals become double-quoted ones.
func Normalize(expr string) string {
	var b strings.Builder
	b.Grow(len(expr))

	inDouble, inSingle := false, false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(expr) {
				i++
				b.WriteByte(expr[i])
			} else if c == '"' {
				inDouble = false
			}
		case inSingle:
			switch {
			case c == '\\' && i+1 < len(expr):
				i++
				if expr[i] == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte('\\')
					b.WriteByte(expr[i])
				}
			case c == '\'':
				b.WriteByte('"')
				inSingle = false
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		case (c == '=' || c == '!') && strings.HasPrefix(expr[i+1:], "=="):
			b.WriteByte(c)
			b.WriteByte('=')
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
