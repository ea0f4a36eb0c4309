package parse

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/pytutor/internal/ast"
)

// literal is a decoded string node: either constant text or f-string parts.
type literal struct {
	parts []ast.FPart
	fmt   bool
}

func (c *converter) stringLit(n *sitter.Node) ast.Expr {
	lit, ok := c.decodeString(n)
	if !ok {
		return nil
	}
	return c.literalExpr(n, lit)
}

func (c *converter) concatenated(n *sitter.Node) ast.Expr {
	var all literal
	for _, kid := range c.named(n) {
		if kid.Type() != "string" {
			continue
		}
		lit, ok := c.decodeString(kid)
		if !ok {
			return nil
		}
		all.fmt = all.fmt || lit.fmt
		all.parts = append(all.parts, lit.parts...)
	}
	return c.literalExpr(n, all)
}

func (c *converter) literalExpr(n *sitter.Node, lit literal) ast.Expr {
	if !lit.fmt {
		var sb strings.Builder
		for _, p := range lit.parts {
			sb.WriteString(p.Lit)
		}
		return &ast.Const{Pos: c.pos(n), Value: sb.String()}
	}
	return &ast.FString{Pos: c.pos(n), Parts: lit.parts}
}

// decodeString splits a string node into its prefix, quotes and body, then
// decodes the body. Interpolations are located by byte range so the grammar
// version's exact child layout does not matter.
func (c *converter) decodeString(n *sitter.Node) (literal, bool) {
	raw := c.text(n)
	prefixLen := 0
	for prefixLen < len(raw) && raw[prefixLen] != '"' && raw[prefixLen] != '\'' {
		prefixLen++
	}
	prefix := strings.ToLower(raw[:prefixLen])
	rest := raw[prefixLen:]
	quote := ""
	switch {
	case strings.HasPrefix(rest, `"""`), strings.HasPrefix(rest, `'''`):
		quote = rest[:3]
	case len(rest) > 0:
		quote = rest[:1]
	}
	if quote == "" || len(rest) < 2*len(quote) {
		c.fail(n, "invalid string literal")
		return literal{}, false
	}
	if strings.Contains(prefix, "b") {
		c.fail(n, "unsupported syntax: bytes literals")
		return literal{}, false
	}
	isRaw := strings.Contains(prefix, "r")
	isFmt := strings.Contains(prefix, "f")

	bodyStart := prefixLen + len(quote)
	bodyEnd := len(raw) - len(quote)
	base := int(n.StartByte())

	var interps []*sitter.Node
	if isFmt {
		collectInterpolations(n, &interps)
	}

	lit := literal{fmt: isFmt}
	cursor := bodyStart
	emit := func(end int) {
		if end <= cursor {
			return
		}
		text := raw[cursor:end]
		if isFmt {
			text = strings.ReplaceAll(strings.ReplaceAll(text, "{{", "{"), "}}", "}")
		}
		if !isRaw {
			text = unescape(text)
		}
		lit.parts = append(lit.parts, ast.FPart{Lit: text})
	}
	for _, in := range interps {
		start := int(in.StartByte()) - base
		end := int(in.EndByte()) - base
		if start < cursor || end > bodyEnd {
			continue
		}
		emit(start)
		part, ok := c.interpolation(in)
		if !ok {
			return literal{}, false
		}
		lit.parts = append(lit.parts, part)
		cursor = end
	}
	emit(bodyEnd)
	return lit, true
}

func collectInterpolations(n *sitter.Node, out *[]*sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "interpolation" {
			*out = append(*out, child)
			continue
		}
		collectInterpolations(child, out)
	}
}

func (c *converter) interpolation(n *sitter.Node) (ast.FPart, bool) {
	var part ast.FPart
	for _, kid := range c.named(n) {
		switch kid.Type() {
		case "type_conversion":
			conv := strings.TrimPrefix(c.text(kid), "!")
			if conv == "" {
				c.fail(kid, "invalid conversion")
				return part, false
			}
			part.Conv = conv[0]
		case "format_specifier":
			part.Spec = strings.TrimPrefix(c.text(kid), ":")
		default:
			if part.Expr == nil {
				part.Expr = c.expr(kid)
			}
		}
	}
	if part.Expr == nil {
		c.fail(n, "f-string: empty expression not allowed")
		return part, false
	}
	return part, true
}

// unescape decodes Python backslash escapes. Unknown escapes are kept as
// written, as Python does.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(e)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[e]
			if i+1+width <= len(s) {
				if r, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil && utf8.ValidRune(rune(r)) {
					sb.WriteRune(rune(r))
					i += width
					continue
				}
			}
			sb.WriteByte('\\')
			sb.WriteByte(e)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			r, _ := strconv.ParseUint(s[i:j], 8, 32)
			sb.WriteRune(rune(r))
			i = j - 1
		default:
			sb.WriteByte('\\')
			sb.WriteByte(e)
		}
	}
	return sb.String()
}
