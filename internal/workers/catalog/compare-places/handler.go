package compareplaces

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"meddir-workers/internal/catalog"
	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/validation"
	"meddir-workers/internal/models"
)

const (
	TaskType = "compare-places"
)

var schema = validation.MustCompile(inputSchema)

type Comparer interface {
	ComparePlaces(ctx context.Context, slugs []string) (*models.ComparisonTable, error)
}

type Handler struct {
	config  *Config
	catalog Comparer
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, comparer Comparer, log logger.Logger) *Handler {
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		catalog: comparer,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		stdErr := apperrors.NewInvalidInputError(fmt.Errorf("parse input: %w", err))
		h.errors.HandleJobError(context.Background(), client, job, stdErr)
		return stdErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(context.Background(), client, job, err)
		return err
	}

	return h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidInputError(fmt.Errorf("input cannot be nil"))
	}
	if err := schema.Check(input); err != nil {
		return nil, err
	}

	table, err := h.catalog.ComparePlaces(ctx, input.Slugs)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ComparisonID: h.config.NewID(),
		Table:        *table,
	}

	if input.IncludeCSV {
		var buf bytes.Buffer
		if err := catalog.WriteCSV(&buf, *table); err != nil {
			return nil, apperrors.NewInternalError(fmt.Errorf("export comparison: %w", err))
		}
		output.CSV = buf.String()
	}

	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return apperrors.NewInternalError(err)
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return apperrors.NewInternalError(err)
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":       job.Key,
		"comparisonId": output.ComparisonID,
		"places":       len(output.Table.Columns),
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
