package campaign

import (
	"strings"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
)

// Render substitutes {name}, {var1} and {var2}. Missing values become empty.
func Render(text string, c model.Contact) string {
	return strings.NewReplacer(
		"{name}", c.Name,
		"{var1}", deref(c.Var1),
		"{var2}", deref(c.Var2),
	).Replace(text)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
