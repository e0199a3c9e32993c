package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/application"
	"github.com/tokenmarket/marketd/internal/core/domain"
)

type Handler struct {
	version   string
	svc       application.Service
	heartbeat time.Duration

	eventsBroker *broker[Event]
}

const defaultHeartbeat = 30 * time.Second

func NewHandler(version string, svc application.Service, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		version:      version,
		svc:          svc,
		heartbeat:    heartbeat,
		eventsBroker: newBroker[Event](),
	}
}

// Listen forwards the ledger events to the stream subscribers until ctx is done.
func (h *Handler) Listen(ctx context.Context) {
	go h.listenToEvents(h.svc.GetEventsChannel(ctx))
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.GET("/info", h.GetInfo)
	v1.GET("/fee", h.GetListingFee)
	v1.POST("/fee", h.SetListingFee)
	v1.GET("/listings", h.ListAllListings)
	v1.POST("/listings", h.MintAndList)
	v1.GET("/listings/latest", h.GetLatestListing)
	v1.GET("/listings/mine", h.ListMyListings)
	v1.GET("/listings/:id", h.GetListing)
	v1.POST("/listings/:id/purchase", h.Purchase)
	v1.GET("/tokens/:id", h.GetToken)
	v1.GET("/tokens/:id/sales", h.ListSales)
	v1.GET("/balances/:address", h.GetBalance)
	v1.GET("/events", h.GetEventStream)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetInfo(c *gin.Context) {
	info, err := h.svc.GetInfo(c.Request.Context())
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newInfoResponse(h.version, info))
}

func (h *Handler) GetListingFee(c *gin.Context) {
	fee, err := h.svc.GetListingFee(c.Request.Context())
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, FeeResponse{Fee: formatAmount(fee)})
}

func (h *Handler) SetListingFee(c *gin.Context) {
	caller, err := callerFromHeader(c)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	var req SetListingFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// nolint:errcheck
		c.Error(invalidRequest("invalid body: %s", err))
		return
	}
	fee, err := parseAmount("fee", req.Fee)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}

	if err := h.svc.SetListingFee(c.Request.Context(), caller, fee); err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, FeeResponse{Fee: formatAmount(fee)})
}

func (h *Handler) MintAndList(c *gin.Context) {
	caller, err := callerFromHeader(c)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	var req MintAndListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// nolint:errcheck
		c.Error(invalidRequest("invalid body: %s", err))
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	feePaid, err := parseAmount("fee_paid", req.FeePaid)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	owner, err := parseOptionalAddress(req.Owner)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}

	tokenId, err := h.svc.MintAndList(
		c.Request.Context(), caller, owner, req.Uri, price, feePaid,
	)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, MintAndListResponse{TokenId: tokenId})
}

func (h *Handler) Purchase(c *gin.Context) {
	caller, err := callerFromHeader(c)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	tokenId, err := parseTokenId(c.Param("id"))
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// nolint:errcheck
		c.Error(invalidRequest("invalid body: %s", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}

	listing, err := h.svc.Purchase(c.Request.Context(), caller, tokenId, amount)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newListing(*listing))
}

func (h *Handler) GetListing(c *gin.Context) {
	tokenId, err := parseTokenId(c.Param("id"))
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	listing, err := h.svc.GetListing(c.Request.Context(), tokenId)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newListing(*listing))
}

func (h *Handler) GetLatestListing(c *gin.Context) {
	listing, err := h.svc.GetLatestListing(c.Request.Context())
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newListing(*listing))
}

func (h *Handler) ListAllListings(c *gin.Context) {
	listings, err := h.svc.ListAllListings(c.Request.Context())
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newListings(listings))
}

func (h *Handler) ListMyListings(c *gin.Context) {
	caller, err := callerFromHeader(c)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	listings, err := h.svc.ListMyListings(c.Request.Context(), caller)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newListings(listings))
}

func (h *Handler) GetToken(c *gin.Context) {
	tokenId, err := parseTokenId(c.Param("id"))
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	token, err := h.svc.GetToken(c.Request.Context(), tokenId)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newToken(*token))
}

func (h *Handler) ListSales(c *gin.Context) {
	tokenId, err := parseTokenId(c.Param("id"))
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	sales, err := h.svc.ListSales(c.Request.Context(), tokenId)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newSales(sales))
}

func (h *Handler) GetBalance(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	amount, err := h.svc.GetBalance(c.Request.Context(), addr)
	if err != nil {
		// nolint:errcheck
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Address: addr.Hex(), Amount: formatAmount(amount)})
}

// GetEventStream streams listing events as server-sent events. Clients may
// restrict the stream to some tokens with repeated token_id query params.
func (h *Handler) GetEventStream(c *gin.Context) {
	topics := c.QueryArray("token_id")
	for _, topic := range topics {
		if _, err := parseTokenId(topic); err != nil {
			// nolint:errcheck
			c.Error(err)
			return
		}
	}

	l := newListener[Event](uuid.New().String(), topics)
	h.eventsBroker.pushListener(l)
	defer h.eventsBroker.removeListener(l.id)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-l.ch:
			c.SSEvent(ev.Type, ev)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{})
			return true
		}
	})
}

func (h *Handler) listenToEvents(eventsCh <-chan domain.Event) {
	for event := range eventsCh {
		if !h.eventsBroker.hasListeners() {
			continue
		}
		ev, ok := newEvent(event)
		if !ok {
			continue
		}

		topic := strconv.FormatUint(ev.TokenId, 10)
		for _, l := range h.eventsBroker.getListenersCopy() {
			if !l.includes(topic) {
				continue
			}
			select {
			case l.ch <- *ev:
			default:
				log.WithField("listener", l.id).Warnf(
					"listener channel full, dropping %s event", ev.Type,
				)
			}
		}
	}
}

func callerFromHeader(c *gin.Context) (common.Address, error) {
	return parseAddress(c.GetHeader(CallerHeader))
}
