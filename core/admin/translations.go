package admin

import (
	"embed"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
)

//go:embed translations/*.json
var translationFiles embed.FS

// Translation translates the user interface into one language
type Translation struct {
	LanguageCode string            `json:"language_code"`
	LanguageName string            `json:"language_name"`
	Translations map[string]string `json:"translations"`
}

// builtinTranslations returns the embedded translations, sorted by language code
func builtinTranslations() []Translation {
	entries, err := translationFiles.ReadDir("translations")
	if err != nil {
		panic(err)
	}
	translations := make([]Translation, 0, len(entries))
	for _, entry := range entries {
		data, err := translationFiles.ReadFile("translations/" + entry.Name())
		if err != nil {
			panic(err)
		}
		var t Translation
		if err = json.Unmarshal(data, &t); err != nil {
			panic(err)
		}
		translations = append(translations, t)
	}
	sort.Slice(translations, func(i, j int) bool {
		return translations[i].LanguageCode < translations[j].LanguageCode
	})
	return translations
}

type translationListItem struct {
	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`
}

type translationListResponse struct {
	Translations        []translationListItem `json:"translations"`
	DefaultLanguageCode string                `json:"default_language_code"`
}

func (a *Admin) translationList(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	response := translationListResponse{
		Translations:        make([]translationListItem, len(a.translations)),
		DefaultLanguageCode: a.defaultLanguageCode,
	}
	for i, t := range a.translations {
		response.Translations[i] = translationListItem{LanguageCode: t.LanguageCode, LanguageName: t.LanguageName}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *Admin) translation(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	code := strings.ToLower(mux.Vars(r)["code"])
	for _, t := range a.translations {
		if strings.ToLower(t.LanguageCode) == code {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Translation not found")
}
