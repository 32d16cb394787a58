package watchlists

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/pkg/response"
)

// GinHandlers contains HTTP handlers for watch-list endpoints
type GinHandlers struct {
	service *Service
	jobs    *jobs.Queue
}

func NewGinHandlers(service *Service, jobQueue *jobs.Queue) *GinHandlers {
	return &GinHandlers{service: service, jobs: jobQueue}
}

type createListRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateListHandler handles POST requests to create a watch list
func (h *GinHandlers) CreateListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		list, err := h.service.Create(req.Name, req.Description)
		response.Handle(c, list, err)
	}
}

type updateListRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// UpdateListHandler handles PATCH requests renaming or redescribing a list
func (h *GinHandlers) UpdateListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		var req updateListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		updated, err := h.service.Update(list.ID, req.Name, req.Description)
		response.Handle(c, updated, err)
	}
}

type reorderListsRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// ReorderListsHandler handles PUT requests rewriting the display order
func (h *GinHandlers) ReorderListsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reorderListsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.service.Reorder(req.IDs); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		lists, err := h.service.List()
		response.Handle(c, lists, err)
	}
}

// ListListsHandler handles GET requests for all watch lists
func (h *GinHandlers) ListListsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lists, err := h.service.List()
		response.Handle(c, lists, err)
	}
}

// GetListHandler handles GET requests for one list and its instruments
func (h *GinHandlers) GetListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		items, err := h.service.Instruments(list.ID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"watch_list": list, "instruments": items})
	}
}

// DeleteListHandler handles DELETE requests for one list
func (h *GinHandlers) DeleteListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		if err := h.service.Delete(list.ID); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"deleted": true})
	}
}

type addInstrumentRequest struct {
	Symbol        string   `json:"symbol" binding:"required"`
	SecType       string   `json:"sec_type" binding:"required"`
	Exchange      string   `json:"exchange"`
	Currency      string   `json:"currency"`
	ContractMonth string   `json:"contract_month"`
	Strike        *float64 `json:"strike"`
	Right         string   `json:"right"`
}

// AddInstrumentHandler handles POST requests to resolve and add an instrument
func (h *GinHandlers) AddInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		var req addInstrumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		month := ""
		if req.ContractMonth != "" {
			normalized, err := contracts.NormalizeMonth(req.ContractMonth)
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			month = normalized
		}

		instrument, err := h.service.AddInstrument(c.Request.Context(), list.ID, contracts.SelectionRequest{
			Symbol:        req.Symbol,
			SecType:       req.SecType,
			Exchange:      req.Exchange,
			Currency:      req.Currency,
			ContractMonth: month,
			Strike:        req.Strike,
			Right:         req.Right,
		})
		response.Handle(c, instrument, err)
	}
}

// RemoveInstrumentHandler handles DELETE requests for one instrument row
func (h *GinHandlers) RemoveInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		instrumentID, err := strconv.ParseUint(c.Param("instrument_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Instrument ID must be numeric")
			return
		}
		removed, err := h.service.RemoveInstrument(list.ID, uint(instrumentID))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if !removed {
			response.NotFound(c, "Instrument not found on this list")
			return
		}
		response.Success(c, gin.H{"removed": true})
	}
}

// RefreshQuotesHandler handles POST requests to queue a quote refresh job for
// the list. The refresh itself runs on the job worker.
func (h *GinHandlers) RefreshQuotesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, ok := h.lookupList(c)
		if !ok {
			return
		}
		job, err := h.jobs.EnqueueIfIdle(jobs.TypeWatchlistQuotes,
			jobs.WatchlistQuotesPayload{WatchListID: list.ID}, "api", "")
		response.Handle(c, job, err)
	}
}

func (h *GinHandlers) lookupList(c *gin.Context) (*WatchList, bool) {
	id, err := strconv.ParseUint(c.Param("list_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Watch list ID must be numeric")
		return nil, false
	}
	list, err := h.service.Get(uint(id))
	if err == ErrNotFound {
		response.NotFound(c, "Watch list not found")
		return nil, false
	}
	if err != nil {
		response.InternalError(c, err.Error())
		return nil, false
	}
	return list, true
}
