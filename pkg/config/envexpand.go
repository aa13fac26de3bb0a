package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv renders {{.VAR}} references in raw YAML against the process
// environment. Template syntax is used instead of $VAR so literal dollar
// signs in passwords, regex patterns, and shell snippets survive untouched.
//
// Unknown variables render as empty strings and are left for the validator
// to reject. When the content does not parse or execute as a template it is
// returned unchanged so the YAML decoder reports the underlying problem.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("settings").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, environment()); err != nil {
		return data
	}
	return out.Bytes()
}

// environment snapshots the process env as a template context.
func environment() map[string]string {
	entries := os.Environ()
	env := make(map[string]string, len(entries))
	for _, kv := range entries {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}
	return env
}
