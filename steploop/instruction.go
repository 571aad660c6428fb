package steploop

import (
	"fmt"
	"strings"
)

// Example is a worked conversation shown to the model: the user's query
// followed by the steps it should produce.
type Example struct {
	Query string
	Steps []Step
}

// InstructionOptions customizes BuildSystemInstruction.
type InstructionOptions struct {
	// Persona replaces the opening line.
	Persona string
	// Examples are rendered after the tool list. Nil uses ArithmeticExample
	// alone; an empty non-nil slice renders none.
	Examples []Example
	// Extra is appended verbatim, e.g. an environment block.
	Extra string
}

const defaultPersona = "You're an expert AI Assistant in resolving user queries using chain of thought."

const stepRules = `You work on START, PLAN and OUTPUT steps.
You need to first PLAN what needs to be done. The PLAN can be multiple steps.
Once you think enough PLAN has been done, finally you can give an OUTPUT.
You can also call tools if required from the list of available tools.
For every tool call wait for the OBSERVE step which is the output from the called tool.

Rules:
- Strictly follow the given JSON output format
- Only run one step at a time
- The sequence of steps is START (where user gives an input), PLAN (that can be multiple times), TOOL (use this if external tools are required to generate the final response, can be used multiple times), OBSERVE (where the output of tool call is) and finally OUTPUT (which is going to be displayed to the user)
- Output EXACTLY ONE JSON object per response
- Do NOT output <think>, markdown, explanations, or extra text

Output JSON Format:
{ "step": "START" | "PLAN" | "OUTPUT" | "TOOL" | "OBSERVE", "content": "string", "tool": "string", "input": "string" }
No extra text, no prefixes, no explanation. Only valid JSON.`

// ArithmeticExample walks through a tool-free calculation.
var ArithmeticExample = Example{
	Query: "Hey, Can you solve 2 + 3 * 5 / 10",
	Steps: []Step{
		{Kind: StepPlan, Content: "Seems like user is interested in math problem"},
		{Kind: StepPlan, Content: "looking at the problem, we should solve this using BODMAS method"},
		{Kind: StepPlan, Content: "first we must multiply 3 * 5 which is 15"},
		{Kind: StepPlan, Content: "Now the new equation is 2 + 15 / 10"},
		{Kind: StepPlan, Content: "We must perform divide that is 15 / 10 = 1.5"},
		{Kind: StepPlan, Content: "Now finally lets perform the add 3.5"},
		{Kind: StepOutput, Content: "3.5"},
	},
}

// BuildSystemInstruction renders the step grammar, the registry's tools and
// the worked examples into a system instruction.
func BuildSystemInstruction(tools *ToolRegistry, opts InstructionOptions) string {
	persona := opts.Persona
	if persona == "" {
		persona = defaultPersona
	}
	examples := opts.Examples
	if examples == nil {
		examples = []Example{ArithmeticExample}
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n")
	sb.WriteString(stepRules)
	sb.WriteString("\n\nAvailable Tools:\n")
	if tools != nil && tools.Count() > 0 {
		sb.WriteString(tools.Catalogue())
	} else {
		sb.WriteString("(none)")
	}
	sb.WriteString("\n")

	for i, ex := range examples {
		fmt.Fprintf(&sb, "\nExample %d:\n\nSTART: %s\n\n", i+1, ex.Query)
		for _, s := range ex.Steps {
			label := StepPlan
			if s.Kind == StepOutput {
				label = StepOutput
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, s.Encode())
		}
	}

	if opts.Extra != "" {
		sb.WriteString("\n")
		sb.WriteString(opts.Extra)
		sb.WriteString("\n")
	}
	return sb.String()
}
