package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zenhq/zen/internal/models"
)

// defaultRetryOnRed is the fallback retry count applied when neither the
// plan nor the config specifies one.
const defaultRetryOnRed = 2

// YAMLParser parses structured YAML plan files into models.Plan.
type YAMLParser struct{}

// NewYAMLParser creates a new YAML plan parser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// yamlPlanFile is the top-level document shape. planner_compliance is held
// as a raw node so it can be re-decoded strictly (unknown fields rejected)
// without forcing strictness on the rest of the document.
type yamlPlanFile struct {
	Zen               *zenConfig            `yaml:"zen"`
	PlannerCompliance *yaml.Node            `yaml:"planner_compliance"`
	DataFlowRegistry  *yamlDataFlowRegistry `yaml:"data_flow_registry"`
	Plan              yamlPlanBody          `yaml:"plan"`
}

type yamlPlanBody struct {
	Metadata yamlPlanMetadata `yaml:"metadata"`
	Tasks    []yamlTask       `yaml:"tasks"`
}

type yamlPlanMetadata struct {
	FeatureName    string `yaml:"feature_name"`
	EstimatedTasks int    `yaml:"estimated_tasks"`
}

// yamlTask is the on-disk task shape. task_number and depends_on entries are
// deliberately untyped: planners emit ints, floats, strings, and cross-file
// maps interchangeably.
type yamlTask struct {
	TaskNumber          interface{}                 `yaml:"task_number"`
	Name                string                      `yaml:"name"`
	Files               []string                    `yaml:"files"`
	DependsOn           []interface{}               `yaml:"depends_on"`
	EstimatedTime       string                      `yaml:"estimated_time"`
	Description         string                      `yaml:"description"`
	Agent               string                      `yaml:"agent"`
	Status              string                      `yaml:"status"`
	CompletedDate       string                      `yaml:"completed_date"`
	CompletedAt         string                      `yaml:"completed_at"`
	WorktreeGroup       string                      `yaml:"worktree_group"`
	Type                string                      `yaml:"type"`
	SuccessCriteria     []yaml.Node                 `yaml:"success_criteria"`
	IntegrationCriteria []string                    `yaml:"integration_criteria"`
	TestCommands        []string                    `yaml:"test_commands"`
	KeyPoints           []models.KeyPoint           `yaml:"key_points"`
	JSONSchema          string                      `yaml:"json_schema"`
	TestFirst           *yamlTestFirst              `yaml:"test_first"`
	Implementation      *yamlImplementation         `yaml:"implementation"`
	RuntimeMetadata     *models.TaskRuntimeMetadata `yaml:"runtime_metadata"`
	Commit              *models.CommitSpec          `yaml:"commit"`
}

type yamlTestFirst struct {
	TestFile        string `yaml:"test_file"`
	ExampleSkeleton string `yaml:"example_skeleton"`
}

type yamlImplementation struct {
	Approach      string `yaml:"approach"`
	CodeStructure string `yaml:"code_structure"`
}

// yamlDocumentationTarget is the on-disk documentation target shape used by
// the data_flow_registry section.
type yamlDocumentationTarget struct {
	Location string `yaml:"location"`
	Section  string `yaml:"section,omitempty"`
}

// Parse reads a YAML plan document and converts it into a models.Plan.
func (p *YAMLParser) Parse(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var doc yamlPlanFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	plan := &models.Plan{
		Name:  doc.Plan.Metadata.FeatureName,
		Tasks: []models.Task{},
	}

	if doc.Zen != nil {
		if err := applyZenSection(doc.Zen, plan); err != nil {
			return nil, err
		}
	}

	if doc.PlannerCompliance != nil {
		compliance, err := parsePlannerCompliance(doc.PlannerCompliance)
		if err != nil {
			return nil, err
		}
		plan.PlannerCompliance = compliance
	}

	registry, err := ParseDataFlowRegistry(doc.DataFlowRegistry)
	if err != nil {
		return nil, err
	}
	plan.DataFlowRegistry = registry
	if err := ValidateDataFlowRegistry(registry, IsDataFlowRegistryRequired(plan.PlannerCompliance)); err != nil {
		return nil, err
	}

	strict := plan.PlannerCompliance != nil && plan.PlannerCompliance.StrictEnforcement
	for i, raw := range doc.Plan.Tasks {
		task, err := convertYAMLTask(raw)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		if err := ValidateTaskType(task); err != nil {
			return nil, err
		}
		if err := ValidateIntegrationTask(task); err != nil {
			return nil, err
		}
		if strict && task.RuntimeMetadata == nil {
			return nil, fmt.Errorf("task %s: runtime_metadata is required under strict enforcement", task.Number)
		}
		plan.Tasks = append(plan.Tasks, *task)
	}

	return plan, nil
}

// ParseFile opens path, parses it, and records its absolute path on the plan.
func (p *YAMLParser) ParseFile(path string) (*models.Plan, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	plan, err := p.Parse(file)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	plan.FilePath = absPath
	return plan, nil
}

// applyZenSection copies the zen: frontmatter section onto the plan,
// validating the QC agents configuration the same way the markdown parser
// does.
func applyZenSection(cfg *zenConfig, plan *models.Plan) error {
	plan.DefaultAgent = cfg.DefaultAgent

	if cfg.QualityControl == nil {
		return nil
	}
	plan.QualityControl.Enabled = cfg.QualityControl.Enabled
	plan.QualityControl.ReviewAgent = cfg.QualityControl.ReviewAgent
	plan.QualityControl.RetryOnRed = cfg.QualityControl.RetryOnRed

	agents := cfg.QualityControl.Agents
	if agents == nil {
		return nil
	}

	mode := strings.ToLower(strings.TrimSpace(agents.Mode))
	validModes := map[string]bool{"auto": true, "explicit": true, "mixed": true, "intelligent": true, "": true}
	if !validModes[mode] {
		return fmt.Errorf("invalid QC agents mode: %q", mode)
	}
	if mode == "explicit" && len(agents.ExplicitList) == 0 {
		return fmt.Errorf("explicit mode requires non-empty explicit_list")
	}

	plan.QualityControl.Agents.Mode = mode
	plan.QualityControl.Agents.ExplicitList = agents.ExplicitList
	plan.QualityControl.Agents.AdditionalAgents = agents.Additional
	plan.QualityControl.Agents.BlockedAgents = agents.Blocked
	return nil
}

// parsePlannerCompliance decodes the planner_compliance node strictly:
// unknown fields are rejected, and planner_version is mandatory.
func parsePlannerCompliance(node *yaml.Node) (*models.PlannerComplianceSpec, error) {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("planner_compliance: %w", err)
	}

	var spec models.PlannerComplianceSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("planner_compliance: %w", err)
	}

	if strings.TrimSpace(spec.PlannerVersion) == "" {
		return nil, fmt.Errorf("planner_compliance: planner_version is required")
	}
	return &spec, nil
}

// convertYAMLTask converts one on-disk task into a models.Task, generating
// its prompt from the structured sections.
func convertYAMLTask(raw yamlTask) (*models.Task, error) {
	number, err := convertToString(raw.TaskNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid task_number: %w", err)
	}

	task := &models.Task{
		Number:              number,
		Name:                raw.Name,
		Files:               raw.Files,
		Agent:               raw.Agent,
		Status:              raw.Status,
		WorktreeGroup:       raw.WorktreeGroup,
		Type:                raw.Type,
		IntegrationCriteria: raw.IntegrationCriteria,
		TestCommands:        raw.TestCommands,
		KeyPoints:           raw.KeyPoints,
		JSONSchema:          raw.JSONSchema,
		RuntimeMetadata:     raw.RuntimeMetadata,
	}

	for _, dep := range raw.DependsOn {
		normalized, err := models.NormalizeDependency(dep)
		if err != nil {
			return nil, err
		}
		task.DependsOn = append(task.DependsOn, normalized)
	}

	if raw.EstimatedTime != "" {
		dur, err := parseDuration(raw.EstimatedTime)
		if err != nil {
			return nil, fmt.Errorf("invalid estimated_time %q: %w", raw.EstimatedTime, err)
		}
		task.EstimatedTime = dur
	}

	if err := parseYAMLCompletion(raw, task); err != nil {
		return nil, err
	}
	if err := parseYAMLCriteria(raw.SuccessCriteria, task); err != nil {
		return nil, err
	}

	// An empty commit: section decodes to a zero CommitSpec; treat it as
	// absent rather than as a spec missing its message.
	if raw.Commit != nil && !raw.Commit.IsEmpty() {
		if err := raw.Commit.Validate(); err != nil {
			return nil, err
		}
		task.CommitSpec = raw.Commit
	}

	task.Prompt = buildYAMLTaskPrompt(raw, task)
	return task, nil
}

// parseYAMLCompletion resolves completed_at / completed_date into the task's
// CompletedAt timestamp. completed_at takes a full RFC 3339 timestamp,
// completed_date a bare date.
func parseYAMLCompletion(raw yamlTask, task *models.Task) error {
	switch {
	case raw.CompletedAt != "":
		ts, err := time.Parse(time.RFC3339, raw.CompletedAt)
		if err != nil {
			return fmt.Errorf("invalid completed_at %q: %w", raw.CompletedAt, err)
		}
		task.CompletedAt = &ts
	case raw.CompletedDate != "":
		ts, err := time.Parse("2006-01-02", raw.CompletedDate)
		if err != nil {
			return fmt.Errorf("invalid completed_date %q: %w", raw.CompletedDate, err)
		}
		task.CompletedAt = &ts
	}
	return nil
}

// parseYAMLCriteria accepts both plain-string criteria and structured
// {criterion, verification} entries, populating SuccessCriteria (flat text)
// and StructuredCriteria (full records) in parallel.
func parseYAMLCriteria(nodes []yaml.Node, task *models.Task) error {
	for i, node := range nodes {
		if node.Kind == yaml.ScalarNode {
			var text string
			if err := node.Decode(&text); err != nil {
				return fmt.Errorf("success_criteria[%d]: %w", i, err)
			}
			task.SuccessCriteria = append(task.SuccessCriteria, text)
			task.StructuredCriteria = append(task.StructuredCriteria, models.StructuredCriterion{Criterion: text})
			continue
		}

		var criterion models.StructuredCriterion
		if err := node.Decode(&criterion); err != nil {
			return fmt.Errorf("success_criteria[%d]: %w", i, err)
		}
		if criterion.Verification != nil {
			if err := criterion.Verification.Validate(); err != nil {
				return fmt.Errorf("success_criteria[%d]: %w", i, err)
			}
		}
		task.SuccessCriteria = append(task.SuccessCriteria, criterion.Criterion)
		task.StructuredCriteria = append(task.StructuredCriteria, criterion)
	}
	return nil
}

// buildYAMLTaskPrompt renders the task's structured sections into the
// XML-tagged prompt handed to the agent.
func buildYAMLTaskPrompt(raw yamlTask, task *models.Task) string {
	var sb strings.Builder

	sb.WriteString(raw.Description)
	sb.WriteString("\n")

	if len(raw.Files) > 0 {
		sb.WriteString("\n<target_files required=\"true\">\n")
		sb.WriteString("You MUST create/modify these exact files. Do NOT create files with different names or paths.\n")
		for _, file := range raw.Files {
			fmt.Fprintf(&sb, "<file>%s</file>\n", file)
		}
		sb.WriteString("</target_files>\n")
	}

	if raw.TestFirst != nil {
		sb.WriteString("\n<test_first>\n")
		if raw.TestFirst.TestFile != "" {
			fmt.Fprintf(&sb, "<test_file>%s</test_file>\n", raw.TestFirst.TestFile)
		}
		if raw.TestFirst.ExampleSkeleton != "" {
			fmt.Fprintf(&sb, "<example>\n%s\n</example>\n", raw.TestFirst.ExampleSkeleton)
		}
		sb.WriteString("</test_first>\n")
	}

	if raw.Implementation != nil {
		sb.WriteString("\n<implementation>\n")
		if raw.Implementation.Approach != "" {
			fmt.Fprintf(&sb, "<approach>%s</approach>\n", raw.Implementation.Approach)
		}
		if raw.Implementation.CodeStructure != "" {
			fmt.Fprintf(&sb, "<code_structure>\n%s\n</code_structure>\n", raw.Implementation.CodeStructure)
		}
		sb.WriteString("</implementation>\n")
	}

	if raw.RuntimeMetadata != nil {
		for _, block := range raw.RuntimeMetadata.PromptBlocks {
			fmt.Fprintf(&sb, "\n<%s>\n%s\n</%s>\n", block.Type, block.Content, block.Type)
		}
	}

	if len(task.SuccessCriteria) > 0 {
		sb.WriteString("\n<success_criteria>\n")
		for _, criterion := range task.SuccessCriteria {
			fmt.Fprintf(&sb, "<criterion>%s</criterion>\n", criterion)
		}
		sb.WriteString("</success_criteria>\n")
	}

	if task.CommitSpec != nil {
		writeCommitSections(&sb, task.CommitSpec)
	}

	return sb.String()
}

// writeCommitSections renders the commit spec plus the imperative
// mandatory-commit instructions agents are known to skip without.
func writeCommitSections(sb *strings.Builder, spec *models.CommitSpec) {
	sb.WriteString("\n<commit>\n")
	if spec.Type != "" {
		fmt.Fprintf(sb, "<type>%s</type>\n", spec.Type)
	}
	fmt.Fprintf(sb, "<message>%s</message>\n", spec.Message)
	if spec.Body != "" {
		fmt.Fprintf(sb, "<body>%s</body>\n", spec.Body)
	}
	if len(spec.Files) > 0 {
		sb.WriteString("<files>\n")
		for _, file := range spec.Files {
			fmt.Fprintf(sb, "<file>%s</file>\n", file)
		}
		sb.WriteString("</files>\n")
	}
	sb.WriteString("</commit>\n")

	sb.WriteString("\n<mandatory_commit required=\"true\">\n")
	sb.WriteString("After making your changes, you MUST commit them to git.\n")
	if len(spec.Files) > 0 {
		sb.WriteString("Stage these files, then commit with the exact message shown:\n")
		sb.WriteString("<files>\n")
		for _, file := range spec.Files {
			fmt.Fprintf(sb, "<file>%s</file>\n", file)
		}
		sb.WriteString("</files>\n")
		sb.WriteString("<commands>\n")
		fmt.Fprintf(sb, "git add %s\n", strings.Join(spec.Files, " "))
		fmt.Fprintf(sb, "git commit -m %q\n", spec.BuildCommitMessage())
		sb.WriteString("</commands>\n")
	} else {
		sb.WriteString("Stage your modified files, then commit with the exact message shown:\n")
		sb.WriteString("<commands>\n")
		sb.WriteString("git add -A\n")
		fmt.Fprintf(sb, "git commit -m %q\n", spec.BuildCommitMessage())
		sb.WriteString("</commands>\n")
	}
	sb.WriteString("<warning>Your task is NOT complete until changes are committed.</warning>\n")
	sb.WriteString("</mandatory_commit>\n")
}

// convertToString normalizes the task-number forms planners emit: ints,
// whole floats, and strings.
func convertToString(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == float64(int(v)) {
			return strconv.Itoa(int(v)), nil
		}
		return fmt.Sprintf("%v", v), nil
	case nil:
		return "", fmt.Errorf("value is missing")
	default:
		return "", fmt.Errorf("unsupported type %T", val)
	}
}

// ApplyRetryOnRedFallback resolves the effective retry-on-red count: an
// explicit plan value wins, then a positive config value, then the default.
func ApplyRetryOnRedFallback(plan *models.Plan, configValue int) {
	if plan == nil || plan.QualityControl.RetryOnRed != 0 {
		return
	}
	if configValue > 0 {
		plan.QualityControl.RetryOnRed = configValue
		return
	}
	plan.QualityControl.RetryOnRed = defaultRetryOnRed
}
