// Package ui styles CLI output with lipgloss.
//
// [RenderReport] draws a session's cached statistics as bordered tables for terminals;
// the plain formats live in the formatter package. The [Palette] holds the shared styles.
package ui
