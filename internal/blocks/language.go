package blocks

import "strings"

const plainText = "plain text"

var languageAliases = map[string]string{
	"js":         "javascript",
	"jsx":        "javascript",
	"mjs":        "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"py":         "python",
	"python3":    "python",
	"rb":         "ruby",
	"rs":         "rust",
	"golang":     "go",
	"sh":         "shell",
	"zsh":        "shell",
	"console":    "shell",
	"ps1":        "powershell",
	"yml":        "yaml",
	"md":         "markdown",
	"cpp":        "c++",
	"cc":         "c++",
	"cxx":        "c++",
	"h":          "c",
	"cs":         "c#",
	"csharp":     "c#",
	"fs":         "f#",
	"fsharp":     "f#",
	"kt":         "kotlin",
	"objc":       "objective-c",
	"dockerfile": "docker",
	"make":       "makefile",
	"proto":      "protobuf",
	"tex":        "latex",
	"hs":         "haskell",
	"ex":         "elixir",
	"exs":        "elixir",
	"erl":        "erlang",
	"ml":         "ocaml",
	"pl":         "perl",
	"text":       plainText,
	"txt":        plainText,
	"plaintext":  plainText,
	"wasm":       "webassembly",
	"vb":         "visual basic",
	"htm":        "html",
	"svg":        "xml",
}

var notionLanguages = map[string]struct{}{}

func init() {
	for _, l := range []string{
		"abap", "arduino", "bash", "basic", "c", "clojure", "coffeescript", "c++",
		"c#", "css", "dart", "diff", "docker", "elixir", "elm", "erlang", "flow",
		"fortran", "f#", "gherkin", "glsl", "go", "graphql", "groovy", "haskell",
		"html", "java", "javascript", "json", "julia", "kotlin", "latex", "less",
		"lisp", "livescript", "lua", "makefile", "markdown", "markup", "matlab",
		"mermaid", "nix", "objective-c", "ocaml", "pascal", "perl", "php",
		"plain text", "powershell", "prolog", "protobuf", "python", "r", "reason",
		"ruby", "rust", "sass", "scala", "scheme", "scss", "shell", "sql", "swift",
		"typescript", "vb.net", "verilog", "vhdl", "visual basic", "webassembly",
		"xml", "yaml",
	} {
		notionLanguages[l] = struct{}{}
	}
}

// language maps a fence info word onto the API's language vocabulary.
func language(info string) string {
	l := strings.ToLower(strings.TrimSpace(info))
	if a, ok := languageAliases[l]; ok {
		return a
	}
	if _, ok := notionLanguages[l]; ok {
		return l
	}
	return plainText
}
