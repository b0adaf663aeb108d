package llm

import (
	"fmt"
	"strings"
)

// GenerationSystemPrompt frames the model as a Manim author and pins down
// the output contract the rest of the pipeline depends on.
const GenerationSystemPrompt = `You are an expert Manim Community Edition animator who writes correct, self-contained Python scripts that explain mathematics visually.`

// generationRules are the hard constraints every candidate script must obey.
// The guard and the runner both assume them.
const generationRules = `HARD RULES:
1. Output ONLY Python source code. No prose, no explanations, no markdown fences.
2. The script must define exactly one scene class named GeneratedScene(Scene).
3. Import only from: manim, numpy, math, random, itertools, functools, typing.
4. Never import os, sys, subprocess, shutil, ctypes, importlib, or socket.
5. Never use eval, exec, compile, __import__, or getattr.
6. Never open files for writing or delete, move, or rename anything.
7. Keep the total animation under 60 seconds of rendered time.
8. Use MathTex for formulas and keep every mobject inside the visible frame.`

// BuildGenerationPrompt produces the first-attempt prompt for a concept.
// style carries optional presentation instructions and docContext optional
// retrieved documentation; "" omits either section.
func BuildGenerationPrompt(concept, style, docContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Manim script that visually explains the following concept:\n\n%s\n\n", strings.TrimSpace(concept))
	if style != "" {
		fmt.Fprintf(&b, "Presentation instructions: %s\n\n", strings.TrimSpace(style))
	}
	if docContext != "" {
		b.WriteString(docContext)
		b.WriteString("\n\n")
	}
	b.WriteString(generationRules)
	return b.String()
}

// BuildRepairPrompt produces a follow-up prompt carrying the failing script
// and everything learned about why it failed. diagnosticHistory is the
// rendered record of all attempts so far, oldest first.
func BuildRepairPrompt(concept, priorScript, diagnosticHistory, docContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following Manim script for the concept %q failed. Fix it.\n\n", strings.TrimSpace(concept))
	b.WriteString("```python\n")
	b.WriteString(strings.TrimRight(priorScript, "\n"))
	b.WriteString("\n```\n\n")
	b.WriteString("Failure history:\n")
	b.WriteString(diagnosticHistory)
	b.WriteString("\n\n")
	if docContext != "" {
		b.WriteString(docContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Return the complete corrected script, not a diff.\n\n")
	b.WriteString(generationRules)
	return b.String()
}
