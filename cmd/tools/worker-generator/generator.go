// cmd/tools/worker-generator/generator.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"ican-workers/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	TaskConst    string
	Category     string
	Description  string
	ErrorCodes   []string
	InputFields  string
	OutputFields string
	NeedsDecimal bool
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schema map[string]interface{}) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

// goTypeFromProperty maps a JSON schema property to a Go type. Amount fields
// that accept either a number or a numeric string become decimals.
func goTypeFromProperty(prop map[string]interface{}) string {
	if _, ok := prop["oneOf"]; ok {
		return "decimal.Decimal"
	}
	switch prop["type"] {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// goFieldName turns a JSON property into an exported Go identifier.
func goFieldName(prop string) string {
	if prop == "" {
		return prop
	}
	name := strings.ToUpper(prop[:1]) + prop[1:]
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

// generateStructFields renders sorted struct fields for the schema properties.
func generateStructFields(schema map[string]interface{}) (string, bool) {
	props := parseSchema(schema)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		fields     []string
		usesDecimal bool
	)
	for _, name := range names {
		details, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		goType := goTypeFromProperty(details)
		if goType == "decimal.Decimal" {
			usesDecimal = true
		}
		fields = append(fields, fmt.Sprintf("\t%s %s `json:\"%s\"`", goFieldName(name), goType, name))
	}
	return strings.Join(fields, "\n"), usesDecimal
}

// taskConst returns the registry constant name for a task type.
func taskConst(taskType string) string {
	var b strings.Builder
	b.WriteString("Task")
	for _, part := range strings.Split(taskType, "-") {
		b.WriteString(goFieldName(part))
	}
	return b.String()
}

func newWorkerData(a registry.Activity) WorkerData {
	in, inDec := generateStructFields(a.InputSchema)
	out, outDec := generateStructFields(a.OutputSchema)
	return WorkerData{
		Name:         a.DisplayName,
		PackageName:  strings.ReplaceAll(a.ID, "-", ""),
		TaskType:     a.TaskType,
		TaskConst:    taskConst(a.TaskType),
		Category:     a.Category,
		Description:  a.Description,
		ErrorCodes:   a.ErrorCodes,
		InputFields:  in,
		OutputFields: out,
		NeedsDecimal: inDec || outDec,
	}
}

const handlerTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"fmt"

	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = registry.{{ .TaskConst }}

// Service performs {{ .Name }}.
type Service interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

type Handler struct {
	service Service
	runner  *camunda.JobRunner
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Service       Service
	Schemas       *validation.SchemaValidator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("invalid configuration for %s: service is required", TaskType)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}

	return &Handler{
		service: opts.Service,
		runner:  camunda.RunnerFor(opts.AppConfig, TaskType, opts.Schemas, opts.Observability, loggerInstance),
		logger:  loggerInstance.WithFields(map[string]interface{}{"worker": TaskType}),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.process)
}

func (h *Handler) Runner() *camunda.JobRunner { return h.runner }

func (h *Handler) process(ctx context.Context, job entities.Job) (interface{}, error) {
	var input Input
	if err := camunda.DecodeVariables(job, &input); err != nil {
		return nil, err
	}
	return h.service.Execute(ctx, &input)
}
`

const modelsTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/models.go
package {{ .PackageName }}
{{ if .NeedsDecimal }}
import "github.com/shopspring/decimal"
{{ end }}
type Input struct {
{{ .InputFields }}
}

type Output struct {
{{ .OutputFields }}
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"ican-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Execute(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

func TestHandler_NewHandlerRequiresService(t *testing.T) {
	_, err := NewHandler(HandlerOptions{})
	assert.Error(t, err)
}

func TestHandler_Process(t *testing.T) {
	svc := new(MockService)
	svc.On("Execute", mock.Anything, mock.Anything).Return(&Output{}, nil)

	h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	out, err := h.process(context.Background(), entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       1,
		Type:      TaskType,
		Variables: "{}",
	}})
	require.NoError(t, err)
	assert.NotNil(t, out)
	svc.AssertExpectations(t)
}
`

// Generate writes the worker scaffold for a into outputDir/<category>/<id>
// and returns the created file paths.
func Generate(a registry.Activity, outputDir string) ([]string, error) {
	data := newWorkerData(a)
	workerDir := filepath.Join(outputDir, a.Category, a.ID)
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	files := []struct {
		name string
		tmpl string
	}{
		{"handler.go", handlerTemplate},
		{"models.go", modelsTemplate},
		{"handler_test.go", testTemplate},
	}

	var written []string
	for _, f := range files {
		tmpl, err := template.New(f.name).Parse(f.tmpl)
		if err != nil {
			return written, fmt.Errorf("parse template %s: %w", f.name, err)
		}
		path := filepath.Join(workerDir, f.name)
		if _, err := os.Stat(path); err == nil {
			return written, fmt.Errorf("%s already exists", path)
		}
		file, err := os.Create(path)
		if err != nil {
			return written, fmt.Errorf("create %s: %w", path, err)
		}
		err = tmpl.Execute(file, data)
		file.Close()
		if err != nil {
			return written, fmt.Errorf("render %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
