package model

// Language is the closed set of supported submission languages. Execution
// adapters are keyed by these slugs; anything else is rejected up front.
type Language string

const (
	LangC          Language = "c"
	LangCpp        Language = "cpp"
	LangJava       Language = "java"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
)

var languages = []Language{LangC, LangCpp, LangJava, LangPython, LangJavaScript}

func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

func (l Language) Valid() bool {
	for _, k := range languages {
		if l == k {
			return true
		}
	}
	return false
}
