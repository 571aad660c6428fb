// Package toolbox provides the concrete tools the agents dispatch to and
// the worked examples that teach a model to use them.
package toolbox

import "github.com/martinemde/stepagent/steploop"

// ToolSource is anything that can describe itself as a steploop tool.
type ToolSource interface {
	Tool() steploop.Tool
}

// Register adds each source's tool to reg.
func Register(reg *steploop.ToolRegistry, sources ...ToolSource) *steploop.ToolRegistry {
	for _, s := range sources {
		reg.Register(s.Tool())
	}
	return reg
}

// NewRegistry builds a registry from sources.
func NewRegistry(sources ...ToolSource) *steploop.ToolRegistry {
	return Register(steploop.NewToolRegistry(), sources...)
}

// WeatherExample shows a single get_weather call.
var WeatherExample = steploop.Example{
	Query: "What is the weather of Delhi?",
	Steps: []steploop.Step{
		{Kind: steploop.StepPlan, Content: "Seems like the user is interested in getting the weather of Delhi in India"},
		{Kind: steploop.StepPlan, Content: "Great, we have a tool get_weather available for query"},
		steploop.NewToolStep("get_weather", "delhi"),
		{Kind: steploop.StepObserve, Tool: "get_weather", Input: "delhi", Output: "The weather in delhi is Cloudy +20°C"},
		{Kind: steploop.StepPlan, Content: "Great i got the weather info about delhi"},
		{Kind: steploop.StepOutput, Content: "The current weather for delhi is 20 C with cloudy sky."},
	},
}

// CodingExample shows a sequence of run_command calls building a project.
var CodingExample = steploop.Example{
	Query: "Create a folder named todo and add code of a todo app using HTML, CSS and JS",
	Steps: []steploop.Step{
		{Kind: steploop.StepPlan, Content: "Seems like the user is interested in creating a todo application using HTML, CSS and JS"},
		{Kind: steploop.StepPlan, Content: "I need to call the run_command tool with 'mkdir todo' as an input"},
		steploop.NewToolStep("run_command", "mkdir todo"),
		{Kind: steploop.StepObserve, Tool: "run_command", Input: "mkdir todo", Output: "Ran command with exit code 0"},
		steploop.NewToolStep("run_command", "touch todo/index.html todo/styles.css todo/index.js"),
		steploop.NewToolStep("run_command", "echo 'html code' > todo/index.html"),
		{Kind: steploop.StepOutput, Content: "Created a todo application using HTML, CSS and JS as per your requirements."},
	},
}
