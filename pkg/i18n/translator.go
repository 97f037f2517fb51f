package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/talewise/storyteller/pkg/logger"
)

// DefaultLanguage answers requests that match no catalogue.
const DefaultLanguage = "es"

//go:embed locales/*.yaml
var embedded embed.FS

type Translator struct {
	messages map[string]map[string]string
	langs    []string
	matcher  language.Matcher
	log      *slog.Logger
}

type Option func(*options)

type options struct {
	defaultLang string
	log         *slog.Logger
}

// WithDefaultLanguage must name a language present in the catalogue.
func WithDefaultLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.defaultLang = lang
		}
	}
}

// WithLogger enables warnings for missing keys.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New loads every *.yaml and *.yml file in fsys.
func New(fsys fs.FS, opts ...Option) (*Translator, error) {
	o := options{defaultLang: DefaultLanguage, log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	messages := make(map[string]map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ext := path.Ext(p); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return errors.Join(ErrFailedToReadFile, err)
		}
		var doc map[string]map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return errors.Join(ErrFailedToParseYAML, fmt.Errorf("%s: %w", p, err))
		}
		for lang, tree := range doc {
			lang = strings.ToLower(lang)
			if messages[lang] == nil {
				messages[lang] = make(map[string]string)
			}
			flatten(messages[lang], "", tree)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrNoTranslations
	}
	if _, ok := messages[o.defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q has no catalogue", o.defaultLang)
	}

	langs := make([]string, 0, len(messages))
	for lang := range messages {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	// The matcher falls back to its first tag, so the default goes first.
	ordered := append([]string{o.defaultLang}, slices.DeleteFunc(slices.Clone(langs), func(l string) bool { return l == o.defaultLang })...)
	tags := make([]language.Tag, len(ordered))
	for i, l := range ordered {
		tags[i] = language.Make(l)
	}

	return &Translator{
		messages: messages,
		langs:    ordered,
		matcher:  language.NewMatcher(tags),
		log:      o.log,
	}, nil
}

var (
	defaultOnce sync.Once
	defaultTr   *Translator
	defaultErr  error
)

// Default returns the translator over the embedded catalogue.
func Default() (*Translator, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "locales")
		if err != nil {
			defaultErr = err
			return
		}
		defaultTr, defaultErr = New(sub)
	})
	return defaultTr, defaultErr
}

func MustDefault() *Translator {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// SupportedLanguages lists catalogue languages, default first.
func (t *Translator) SupportedLanguages() []string { return slices.Clone(t.langs) }

// Match resolves any language tag to a supported catalogue language.
func (t *Translator) Match(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := t.messages[lang]; ok {
		return lang
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return t.langs[0]
	}
	_, idx, _ := t.matcher.Match(tag)
	return t.langs[idx]
}

// MatchAcceptLanguage resolves an Accept-Language header value.
func (t *Translator) MatchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return t.langs[0]
	}
	_, idx, _ := t.matcher.Match(tags...)
	return t.langs[idx]
}

// T translates key for lang. args are key/value pairs for %{name}
// placeholders. Unknown keys fall back to the default language, then to
// the key itself.
func (t *Translator) T(lang, key string, args ...string) string {
	lang = t.Match(lang)
	msg, ok := t.messages[lang][key]
	if !ok {
		msg, ok = t.messages[t.langs[0]][key]
	}
	if !ok {
		t.log.Warn("translation not found", slog.String("lang", lang), slog.String("key", key))
		msg = key
	}
	return substitute(msg, args)
}

func (t *Translator) Has(lang, key string) bool {
	_, ok := t.messages[strings.ToLower(lang)][key]
	return ok
}

var paramRegex = regexp.MustCompile(`%\{([^}]+)\}`)

func substitute(tmpl string, args []string) string {
	if len(args) < 2 {
		return tmpl
	}
	params := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		params[args[i]] = args[i+1]
	}
	return paramRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		if v, ok := params[match[2:len(match)-1]]; ok {
			return v
		}
		return match
	})
}

func flatten(dst map[string]string, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(dst, key, val)
		case string:
			dst[key] = val
		case nil:
		default:
			dst[key] = fmt.Sprint(val)
		}
	}
}
