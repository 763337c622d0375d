package web

import "embed"

// TemplatesFS holds the page and fragment templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and map script.
//
//go:embed static/*
var StaticFS embed.FS
