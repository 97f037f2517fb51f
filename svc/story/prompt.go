package story

import (
	"fmt"
	"strings"
)

type promptText struct {
	lengths      map[Length]string
	ages         map[string]string
	anyAge       string
	names        string
	levels       map[string]string
	defaultLevel string
	body         string
}

var prompts = map[Language]promptText{
	LanguageEN: {
		lengths: map[Length]string{
			LengthShort:  "very short (exactly 100 words)",
			LengthMedium: "medium length (exactly 300 words)",
			LengthLong:   "long (exactly 600 words)",
		},
		ages: map[string]string{
			"3-6":   "children aged 3 to 6",
			"7-13":  "children aged 7 to 13",
			"13-20": "teenagers aged 13 to 20",
			"21-35": "young adults",
			"35+":   "adults",
		},
		anyAge: "all audiences",
		names:  "\nThe main characters should be named: %s.",
		levels: map[string]string{
			"basic": `
IMPORTANT: Use ONLY these words in English:
- Verbs: be, have, do, say, get, make, go, know, take, see, come, think, look, want, give, use, find, tell, ask, work, seem, feel, try, leave, call
- Pronouns: I, you, he, she, it, we, they
- Articles: a, an, the

STRICT RULES:
1. Use ONLY simple present tense (I go, you see, he likes)
2. Maximum 3 words per sentence
3. No contractions (use "do not" not "don't")
4. No adjectives or adverbs
5. No idioms or expressions
6. No past or future tense
7. No questions
8. No complex sentences

Example of how it should be:
"I see a cat. The cat is big. I like the cat. The cat likes me."

DO NOT use sentences like:
"I was walking in the park (past tense)
The beautiful cat runs quickly (adjectives and adverbs)
I don't like cats (contraction)
What do you see? (question)
The cat that I like is big (complex sentence)"`,
			"intermediate": `
Use intermediate vocabulary (B1-B2 level) with these characteristics:
- You can use all basic verb tenses (present, past, future)
- You can use common adverbs (quickly, slowly, well, badly)
- You can use some common idiomatic expressions
- You can use longer phrases (up to 10 words)
- You can use contractions (I'm, don't, can't)
- You can use more descriptive adjectives

Example of intermediate level:
"I was walking in the park when I saw a beautiful butterfly. It was flying quickly from flower to flower. I wanted to take a picture, but my phone was at home."`,
			"advanced": `
Use advanced vocabulary (C1-C2 level) with these characteristics:
- Use all verb tenses, including perfect and continuous forms
- Use idiomatic expressions and idioms
- Use complex and subordinate phrases
- Use sophisticated and specific vocabulary
- Use figurative language and metaphors
- Use different language styles according to context

Example of advanced level:
"As the golden rays of the setting sun cast long shadows across the meadow, a kaleidoscope of butterflies danced in the crisp autumn air, their delicate wings creating a mesmerizing spectacle of color and motion."`,
		},
		defaultLevel: "\nUse intermediate English vocabulary.",
		body: `Create a story with the following structure:

[Write a creative, engaging, and short title here. Do not include any labels or asterisks.]

Write a %[1]s %[2]s story about "%[3]s". 
The story should be appropriate for %[4]s.%[5]s%[6]s
Use an engaging narrative style, with interesting characters and a coherent plot development.
Include dialogues and descriptions where appropriate.
The story should have a clear beginning, development, and conclusion.
IMPORTANT: The story must be exactly %[7]d words.`,
	},
	LanguageES: {
		lengths: map[Length]string{
			LengthShort:  "muy corta (exactamente 100 palabras)",
			LengthMedium: "de longitud media (exactamente 300 palabras)",
			LengthLong:   "larga (exactamente 600 palabras)",
		},
		ages: map[string]string{
			"3-6":   "niños de 3 a 6 años",
			"7-13":  "niños de 7 a 13 años",
			"13-20": "adolescentes de 13 a 20 años",
			"21-35": "adultos jóvenes",
			"35+":   "adultos",
		},
		anyAge: "todo público",
		names:  "\nLos personajes principales deben llamarse: %s.",
		levels: map[string]string{
			"basic": `
IMPORTANTE: Usa SOLO estas palabras en inglés:
- Verbos: be, have, do, say, get, make, go, know, take, see, come, think, look, want, give, use, find, tell, ask, work, seem, feel, try, leave, call
- Pronombres: I, you, he, she, it, we, they
- Artículos: a, an, the

REGLAS ESTRICTAS:
1. Usa SOLO el presente simple (I go, you see, he likes)
2. Máximo 3 palabras por frase
3. No uses contracciones (usa "do not" no "don't")
4. No uses adjetivos ni adverbios
5. No uses modismos ni expresiones
6. No uses pasado ni futuro
7. No uses preguntas
8. No uses oraciones complejas

Ejemplo de cómo debe ser:
"I see a cat. The cat is big. I like the cat. The cat likes me."

NO uses frases como:
"I was walking in the park (pasado)
The beautiful cat runs quickly (adjetivos y adverbios)
I don't like cats (contracción)
What do you see? (pregunta)
The cat that I like is big (oración compleja)"`,
			"intermediate": `
Usa un vocabulario intermedio (nivel B1-B2) con estas características:
- Puedes usar todos los tiempos verbales básicos (presente, pasado, futuro)
- Puedes usar adverbios comunes (quickly, slowly, well, badly)
- Puedes usar algunas expresiones idiomáticas comunes
- Puedes usar frases más largas (hasta 10 palabras)
- Puedes usar contracciones (I'm, don't, can't)
- Puedes usar adjetivos más descriptivos

Ejemplo de nivel intermedio:
"I was walking in the park when I saw a beautiful butterfly. It was flying quickly from flower to flower. I wanted to take a picture, but my phone was at home."`,
			"advanced": `
Usa un vocabulario avanzado (nivel C1-C2) con estas características:
- Usa todos los tiempos verbales, incluyendo perfectos y continuos
- Usa expresiones idiomáticas y modismos
- Usa frases complejas y subordinadas
- Usa vocabulario sofisticado y específico
- Usa lenguaje figurativo y metáforas
- Usa diferentes estilos de lenguaje según el contexto

Ejemplo de nivel avanzado:
"As the golden rays of the setting sun cast long shadows across the meadow, a kaleidoscope of butterflies danced in the crisp autumn air, their delicate wings creating a mesmerizing spectacle of color and motion."`,
		},
		defaultLevel: "\nUsa un vocabulario intermedio en inglés.",
		body: `Crea una historia con la siguiente estructura:

[Escribe un título creativo, atractivo y corto aquí. No incluyas etiquetas ni asteriscos.]

Escribe una historia %[1]s de género %[2]s sobre "%[3]s". 
La historia debe ser apropiada para %[4]s.%[5]s%[6]s
Usa un estilo narrativo atractivo, con personajes interesantes y un desarrollo coherente de la trama.
Incluye diálogos y descripciones donde sea apropiado.
La historia debe tener un inicio, desarrollo y conclusión claros.
IMPORTANTE: La historia debe tener exactamente %[7]d palabras.`,
	},
}

// BuildPrompt renders the instruction sent to the text provider for p.
func BuildPrompt(p Params) string {
	p = p.Normalize()
	lang := ParseLanguage(p.Language)
	t := prompts[lang]
	length := ParseLength(p.Length)

	age, ok := t.ages[p.AgeGroup]
	if !ok {
		age = t.anyAge
	}

	var names string
	if list := splitNames(p.ChildNames); len(list) > 0 {
		names = fmt.Sprintf(t.names, strings.Join(list, ", "))
	}

	level, ok := t.levels[p.EnglishLevel]
	if !ok {
		level = t.defaultLevel
	}

	return fmt.Sprintf(t.body, t.lengths[length], p.StoryType, p.Topic, age, names, level, length.Words())
}

func splitNames(s string) []string {
	var out []string
	for name := range strings.SplitSeq(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

const maxTitleLen = 60

// ExtractTitle takes the title from the first line of a completion. When the
// first line does not look like a title, a topic-based one is made up and
// the whole completion is kept as content.
func ExtractTitle(completion, topic string, lang Language) (title, content string) {
	completion = strings.TrimSpace(completion)
	first, rest, _ := strings.Cut(completion, "\n")

	title = strings.TrimSpace(first)
	title = strings.TrimPrefix(title, "**")
	title = strings.TrimRight(title, "*")
	title = trimLabel(strings.TrimSpace(title))
	title = strings.TrimSpace(title)

	if title != "" && len([]rune(title)) < maxTitleLen && !strings.ContainsAny(title[len(title)-1:], ".,:;?!") {
		return title, strings.TrimSpace(rest)
	}
	if lang == LanguageEN {
		return fmt.Sprintf("The %s Adventure", topic), completion
	}
	return fmt.Sprintf("La Aventura de %s", topic), completion
}

func trimLabel(s string) string {
	for _, label := range []string{"título:", "titulo:", "title:"} {
		if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
			return s[len(label):]
		}
	}
	return s
}

// Temperature maps the creativity choice onto a sampling temperature.
func Temperature(level string) float32 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low", "bajo", "baja":
		return 0.4
	case "high", "alto", "alta":
		return 1.0
	}
	return 0.7
}
