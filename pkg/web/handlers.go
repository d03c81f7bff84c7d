// Package web provides HTTP handlers and REST API endpoints for graph
// management and run control.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/artistscloud/a9ents-sub000/pkg/engine"
	"github.com/artistscloud/a9ents-sub000/pkg/graph"
	"github.com/artistscloud/a9ents-sub000/pkg/models"
	"github.com/artistscloud/a9ents-sub000/pkg/persistence"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
	"github.com/artistscloud/a9ents-sub000/pkg/runstore"
	"github.com/artistscloud/a9ents-sub000/pkg/validation"
)

type APIHandlers struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	model       *graph.Model
	engine      *engine.Engine
	runs        runstore.Store
	validator   *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	reg *registry.Registry,
	eng *engine.Engine,
	runs runstore.Store,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: store,
		registry:    reg,
		model:       graph.NewModel(reg),
		engine:      eng,
		runs:        runs,
		validator:   validate,
	}
}

// RegisterRoutes mounts all API routes on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/kinds", h.GetNodeKinds)

	app.Get("/graphs", h.GetGraphs)
	app.Post("/graphs", h.CreateGraph)
	app.Get("/graphs/:id", h.GetGraph)
	app.Patch("/graphs/:id", h.UpdateGraph)
	app.Delete("/graphs/:id", h.DeleteGraph)

	app.Post("/graphs/:id/nodes", h.CreateNode)
	app.Patch("/graphs/:id/nodes/:nodeId", h.UpdateNode)
	app.Delete("/graphs/:id/nodes/:nodeId", h.DeleteNode)

	app.Post("/graphs/:id/edges", h.CreateEdge)
	app.Delete("/graphs/:id/edges/:edgeId", h.DeleteEdge)

	app.Post("/graphs/:id/validate", h.ValidateGraph)
	app.Post("/graphs/:id/runs", h.StartRun)
	app.Get("/graphs/:id/runs", h.GetRuns)
	app.Get("/runs/:id", h.GetRun)
	app.Post("/runs/:id/cancel", h.CancelRun)

	app.Post("/hooks/:graphId", h.Webhook)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()

	repOk := true
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repOk = false
		repositoryCheck = err.Error()
	}

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GetNodeKinds returns the catalog of registered node kinds with their port
// declarations, for the graph editor palette.
func (h *APIHandlers) GetNodeKinds(c fiber.Ctx) error {
	kinds := make([]models.NodeType, 0)

	for _, kind := range h.registry.Kinds() {
		nodeType, err := h.registry.Lookup(kind)
		if err != nil {
			continue
		}

		kinds = append(kinds, nodeType)
	}

	return c.JSON(fiber.Map{"kinds": kinds})
}

func (h *APIHandlers) GetGraphs(c fiber.Ctx) error {
	var (
		graphs []*models.Graph
		err    error
	)

	if owner := c.Query("owner"); owner != "" {
		graphs, err = h.persistence.GraphsByOwner(c.Context(), owner)
	} else {
		graphs, err = h.persistence.Graphs(c.Context())
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"graphs": graphs, "total_count": len(graphs)})
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(g)
}

func (h *APIHandlers) CreateGraph(c fiber.Ctx) error {
	var req CreateGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	g := &models.Graph{
		Name:  req.Name,
		Owner: req.Owner,
		Nodes: []*models.Node{},
		Edges: []*models.Edge{},
	}

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(g)
}

func (h *APIHandlers) UpdateGraph(c fiber.Ctx) error {
	var req UpdateGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	if req.Name != nil {
		g.Name = *req.Name
	}

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.JSON(g)
}

func (h *APIHandlers) DeleteGraph(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Graph ID is required")
	}

	if err := h.persistence.DeleteGraph(c.Context(), id); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	node, err := h.model.AddNode(g, req.Kind, req.Label, req.Config, models.Position{X: req.PositionX, Y: req.PositionY})
	if err != nil {
		return handleDomainError(c, err)
	}

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	node := g.NodeByID(c.Params("nodeId"))
	if node == nil {
		return notFound(c, "Node not found")
	}

	if req.Config != nil {
		violations, err := h.registry.ValidateConfig(node.Kind, req.Config)
		if err != nil {
			return internalError(c, err)
		}

		if len(violations) > 0 {
			return badRequest(c, violations[0])
		}

		node.Config = req.Config
	}

	if req.Label != "" {
		node.Label = req.Label
	}

	node.Position = models.Position{X: req.PositionX, Y: req.PositionY}

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	h.model.RemoveNode(g, c.Params("nodeId"))

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateEdge(c fiber.Ctx) error {
	var req CreateEdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	edge, err := h.model.AddEdge(g, req.SourceNodeID, req.SourcePort, req.TargetNodeID, req.TargetPort, req.Condition)
	if err != nil {
		return handleDomainError(c, err)
	}

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) DeleteEdge(c fiber.Ctx) error {
	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	h.model.RemoveEdge(g, c.Params("edgeId"))

	if err := h.persistence.SaveGraph(c.Context(), g); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateGraph(c fiber.Ctx) error {
	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(validation.Validate(g, h.registry))
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	g, err := h.loadGraph(c)
	if err != nil {
		return handleDomainError(c, err)
	}

	run, err := h.engine.StartRun(c.Context(), g, req.Payload)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.runs.ListRunsByGraph(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs, "total_count": len(runs)})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runs.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	if err := h.engine.Cancel(c.Params("id")); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// Webhook starts a run for a graph carrying a webhook trigger node. The
// request method, path, headers and body become the trigger payload.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	g, err := h.persistence.GraphByID(c.Context(), c.Params("graphId"))
	if err != nil {
		return handleDomainError(c, err)
	}

	hasWebhook := false

	for _, node := range g.Nodes {
		if node.Kind == registry.KindTriggerWebhook {
			hasWebhook = true

			break
		}
	}

	if !hasWebhook {
		return notFound(c, "Graph has no webhook trigger")
	}

	headers := make(map[string]any)
	for name, values := range c.GetReqHeaders() {
		headers[name] = strings.Join(values, ", ")
	}

	payload := map[string]any{
		"trigger": "webhook",
		"method":  c.Method(),
		"path":    c.Path(),
		"headers": headers,
	}

	if len(c.Body()) > 0 {
		var body map[string]any
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		payload["body"] = body
	}

	run, err := h.engine.StartRun(c.Context(), g, payload)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) loadGraph(c fiber.Ctx) (*models.Graph, error) {
	return h.persistence.GraphByID(c.Context(), c.Params("id"))
}
