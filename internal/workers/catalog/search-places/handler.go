package searchplaces

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"meddir-workers/internal/catalog"
	apperrors "meddir-workers/internal/common/errors"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/validation"
	"meddir-workers/internal/models"
)

const (
	TaskType = "search-places"
)

var schema = validation.MustCompile(inputSchema)

// Lister is the slice of the catalog service this worker reads from.
type Lister interface {
	ListPlaces(ctx context.Context, p catalog.Params) (*models.Page[models.Place], error)
	ListPrograms(ctx context.Context, p catalog.Params) (*models.Page[models.Program], error)
}

type Handler struct {
	config  *Config
	catalog Lister
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, lister Lister, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		catalog: lister,
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

	params := catalog.Params{
		Search:      input.Search,
		Type:        input.Type,
		Institution: input.Institution,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}

	output := &Output{Catalog: input.Catalog}
	switch input.Catalog {
	case CatalogPrograms:
		page, err := h.catalog.ListPrograms(ctx, params)
		if err != nil {
			return nil, err
		}
		output.Programs = page.Items
		output.Pagination = page.Pagination
	default:
		output.Catalog = CatalogPlaces
		page, err := h.catalog.ListPlaces(ctx, params)
		if err != nil {
			return nil, err
		}
		output.Places = page.Items
		output.Pagination = page.Pagination
	}

	h.logger.Debug("search finished", map[string]interface{}{
		"catalog": output.Catalog,
		"total":   output.Pagination.Total,
		"hasMore": output.Pagination.HasMore,
	})
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
		"jobKey": job.Key,
		"total":  output.Pagination.Total,
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
