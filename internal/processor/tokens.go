package processor

import (
	"regexp"
	"strings"
)

// tokenRe matches words and numbers, keeping decimals like 4.9 and
// elisions like government's as single tokens
var tokenRe = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+(?:['’.,][\p{L}\p{M}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an and are as at be but by for from has have in is it its of on or that the
		their this to was were will with what which who how does do did i you we they he she can
		about into than then there these those our your his her not no so if also been being`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Tokenize lowercases text and splits it into word and number tokens
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// Terms returns the tokens of text without stopwords
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := tokens[:0]
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			terms = append(terms, tok)
		}
	}
	return terms
}

// TermSet returns the distinct terms of text
func TermSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Terms(text) {
		set[t] = struct{}{}
	}
	return set
}
