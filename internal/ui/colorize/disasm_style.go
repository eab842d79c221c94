package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// StyleName is the chroma style registered for listings.
const StyleName = "recompiler-dark"

// ListingDark is the style used for x86-64 listings under the nasm lexer.
var ListingDark = styles.Register(chroma.MustNewStyle(StyleName, chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#EBC2ED", // annotations

	chroma.Keyword:       "#FFFFFF", // size keywords (qword ptr)
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.NameFunction:  "#FFFFFF", // mnemonics
	chroma.Name:          "#7C9C9D", // registers
	chroma.NameBuiltin:   "#7C9C9D",
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameLabel:     "#FFD700",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
