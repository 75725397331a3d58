package frontend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OxenFxc/luaaivmp/source"
)

func tokenize(t *testing.T, src string) []Token {
	t.Helper()
	file := &source.File{Filename: "test.sl", Contents: src}
	return NewLexer(file).Tokenize()
}

func TestLexerKeywordsAndPunctuation(t *testing.T) {
	toks := tokenize(t, "local x = 1 + 2 -- trailing comment\nreturn x")

	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}

	require.Equal(t, []TokenKind{
		KwLocal, Ident, Assign, Number, Plus, Number, KwReturn, Ident, EOF,
	}, kinds)
}

func TestLexerTracksLineNumbers(t *testing.T) {
	toks := tokenize(t, "local a = 1\nlocal b = 2\n")

	require.Equal(t, 1, toks[0].Line)
	// find the second "local"
	var secondLocalLine int
	seen := 0
	for _, tok := range toks {
		if tok.Kind == KwLocal {
			seen++
			if seen == 2 {
				secondLocalLine = tok.Line
			}
		}
	}
	require.Equal(t, 2, secondLocalLine)
}

func TestLexerMultiCharOperators(t *testing.T) {
	toks := tokenize(t, "a ~= b == c <= d >= e // f .. g ... h :: i")
	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Contains(t, kinds, Ne)
	require.Contains(t, kinds, Eq)
	require.Contains(t, kinds, Le)
	require.Contains(t, kinds, Ge)
	require.Contains(t, kinds, SlashSlash)
	require.Contains(t, kinds, DotDot)
	require.Contains(t, kinds, DotDotDot)
	require.Contains(t, kinds, ColonColon)
}

func TestLexerStringLiteral(t *testing.T) {
	toks := tokenize(t, `"hello world"`)
	require.Equal(t, String, toks[0].Kind)
	require.Equal(t, "hello world", toks[0].Lexeme)
}

func TestLexerUnknownCharacter(t *testing.T) {
	toks := tokenize(t, "a = @b")
	var found bool
	for _, tok := range toks {
		if tok.Kind == Unknown {
			found = true
			require.Equal(t, "@", tok.Lexeme)
		}
	}
	require.True(t, found)
}

func TestLexerNumberWithFraction(t *testing.T) {
	toks := tokenize(t, "1.5 10 0.25")
	require.Equal(t, "1.5", toks[0].Lexeme)
	require.Equal(t, "10", toks[1].Lexeme)
	require.Equal(t, "0.25", toks[2].Lexeme)
}
