package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/marketdata"
	"github.com/wonny/allocator/pkg/logger"
)

// AssetHandler handles asset lookup API endpoints
// ⭐ SSOT: 자산 조회 API 핸들러는 이 구조체에서만
type AssetHandler struct {
	service  *marketdata.Service
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(service *marketdata.Service, log *logger.Logger) *AssetHandler {
	return &AssetHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// wsSearchResponse is one search-as-you-type reply
type wsSearchResponse struct {
	Result *marketdata.SearchResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Status int                      `json:"status"`
}

// GetAssets returns the fiat or crypto catalog
// GET /api/assets/{kind}
func (h *AssetHandler) GetAssets(w http.ResponseWriter, r *http.Request) {
	kind := contracts.AssetKind(mux.Vars(r)["kind"])
	if kind != contracts.AssetKindFiat && kind != contracts.AssetKindCrypto {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown asset kind %q", kind))
		return
	}

	assets, err := h.service.Assets(r.Context(), kind)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	respondJSON(w, http.StatusOK, assets)
}

// Search looks up assets in every category
// GET /api/assets/search?q=bitc
func (h *AssetHandler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ServeSearchWS runs search-as-you-type: each text message is a query that
// supersedes the previous one, and superseded queries are never answered
// GET /ws/search
func (h *AssetHandler) ServeSearchWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	searcher := marketdata.NewSearcher(h.service)
	var (
		pending sync.WaitGroup
		writeMu sync.Mutex
	)
	defer func() {
		cancel()
		searcher.Stop()
		pending.Wait()
	}()

	conn.SetReadLimit(1024)
	log := h.logger.WithField("remote", r.RemoteAddr)

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		replies := searcher.Start(ctx, string(data))
		pending.Add(1)
		go func() {
			defer pending.Done()
			reply := <-replies
			if errors.Is(reply.Err, contracts.ErrStaleResult) {
				return
			}

			resp := wsSearchResponse{Result: &reply.Result, Status: http.StatusOK}
			if reply.Err != nil {
				status, message := statusFor(reply.Err)
				resp = wsSearchResponse{Error: message, Status: status}
			}

			writeMu.Lock()
			defer writeMu.Unlock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(resp); err != nil {
				log.WithError(err).Debug("websocket write failed")
			}
		}()
	}
}

// GetPrice returns the price of an asset in a quote currency
// GET /api/price/{asset}?quote=eur
func (h *AssetHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	quote := r.URL.Query().Get("quote")
	if quote == "" {
		respondError(w, http.StatusBadRequest, "quote is required")
		return
	}

	price, ok, err := h.service.Price(r.Context(), asset, quote)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if !ok {
		respondErr(w, h.logger, fmt.Errorf("price for market '%s/%s': %w",
			strings.ToLower(asset), strings.ToLower(quote), contracts.ErrPriceNotAvailable))
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	respondJSON(w, http.StatusOK, price)
}
