package editor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoAnswer is returned by a ScriptedSource that has no answer for a required field
var ErrNoAnswer = errors.New("no answer")

// Field is one question asked while building a record
type Field struct {
	// Label is the record label the answer is stored under
	Label    string
	Prompt   string
	Default  string
	Optional bool
	// Choices, when set, restricts the answer to a menu
	Choices []string
}

func (f Field) prompt() string {
	if len(f.Prompt) > 0 {
		return f.Prompt
	}
	return f.Label
}

// FieldSource answers questions for the editor
type FieldSource interface {
	Ask(Field) (string, error)
}

// SurveySource asks the operator on the terminal
type SurveySource struct{}

// Ask prompts for f and returns the raw answer
func (SurveySource) Ask(f Field) (string, error) {
	var answer string
	var prompt survey.Prompt

	if len(f.Choices) > 0 {
		options, def := selectOptions(f)
		sel := &survey.Select{
			Message: f.prompt() + ":",
			Options: options,
		}
		if len(def) > 0 {
			sel.Default = def
		}
		prompt = sel
	} else {
		prompt = &survey.Input{
			Message: f.prompt() + ":",
			Default: f.Default,
		}
	}

	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	if answer == KeepChoice {
		return "", nil
	}

	return answer, nil
}

// KeepChoice is the menu entry that leaves an optional choice unanswered
const KeepChoice = "Keep current"

// selectOptions returns the menu for f and its preselected entry.
// Optional fields get KeepChoice first, preselected unless f.Default is a choice.
func selectOptions(f Field) ([]string, string) {
	var def string
	for _, c := range f.Choices {
		if c == f.Default {
			def = c
			break
		}
	}
	if !f.Optional {
		return f.Choices, def
	}
	options := append([]string{KeepChoice}, f.Choices...)
	if len(def) == 0 {
		def = KeepChoice
	}
	return options, def
}

// ScriptedSource answers from a fixed set of answers keyed by label.
// Multiple answers for a label are handed out in order, one per question.
type ScriptedSource struct {
	answers map[string][]string
	asked   []string
}

// NewScriptedSource returns a ScriptedSource over answers
func NewScriptedSource(answers map[string][]string) *ScriptedSource {
	cp := make(map[string][]string, len(answers))
	for k, v := range answers {
		cp[k] = append([]string(nil), v...)
	}
	return &ScriptedSource{answers: cp}
}

// LoadScriptedSource reads answers from a YAML file mapping labels to a value or a list of values
func LoadScriptedSource(path string) (*ScriptedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers file: %w", err)
	}
	// nodes keep scalars verbatim, so 17.0 stays "17.0"
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse answers file %s: %w", path, err)
	}
	answers := make(map[string][]string, len(raw))
	for label, node := range raw {
		switch node.Kind {
		case yaml.SequenceNode:
			answers[label] = []string{}
			for _, item := range node.Content {
				answers[label] = append(answers[label], item.Value)
			}
		case yaml.ScalarNode:
			answers[label] = []string{node.Value}
		default:
			return nil, fmt.Errorf("answers file %s: %q must be a value or a list of values", path, label)
		}
	}
	return NewScriptedSource(answers), nil
}

// Ask returns the next scripted answer for f.Label.
// With nothing scripted it accepts the default, or fails for a required field.
func (s *ScriptedSource) Ask(f Field) (string, error) {
	s.asked = append(s.asked, f.Label)
	queue := s.answers[f.Label]
	if len(queue) == 0 {
		if len(f.Default) > 0 || f.Optional {
			return "", nil
		}
		return "", fmt.Errorf("%w for %q", ErrNoAnswer, f.Label)
	}
	s.answers[f.Label] = queue[1:]
	return strings.TrimSpace(queue[0]), nil
}
