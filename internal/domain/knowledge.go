package domain

import "strings"

// KnowledgeEntry es una entrada FAQ mantenida por el CMS. El core solo la lee.
type KnowledgeEntry struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Keywords string `json:"keywords"`
	Answer   string `json:"answer"`
	IsActive bool   `json:"isActive"`
	Priority int    `json:"priority"`
}

// Matches aplica la regla de coincidencia por subcadena, sin distinguir mayusculas.
// Coincide si la pregunta contiene el texto o viceversa, si el campo keywords contiene
// el texto, o si el texto contiene alguna keyword separada por comas.
func (e KnowledgeEntry) Matches(text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return false
	}
	question := strings.ToLower(strings.TrimSpace(e.Question))
	keywords := strings.ToLower(e.Keywords)

	if question != "" && (strings.Contains(question, needle) || strings.Contains(needle, question)) {
		return true
	}
	if strings.Contains(keywords, needle) {
		return true
	}
	for _, kw := range strings.Split(keywords, ",") {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(needle, kw) {
			return true
		}
	}
	return false
}
