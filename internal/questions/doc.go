// Package questions loads and maintains questions.json, the ordered list of
// prompts a speaker records answers to.
package questions
