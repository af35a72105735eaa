package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"flowwallet.io/wallet-link/internal/relay"
	"flowwallet.io/wallet-link/internal/walletconnect"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
	"flowwallet.io/wallet-link/pkg/log/middleware"
)

// NewServer runs the local control API: inspect the session projection and
// drive pairing without going through the UI layer.
func NewServer(listen string, manager *walletconnect.Manager, client *relay.Client) {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP())

	router.GET("/v1/sessions", func(ctx *gin.Context) {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"sessions": manager.Store().Sessions(),
		})
	})
	router.GET("/v1/pairings", func(ctx *gin.Context) {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"pairings": manager.Store().Pairings(),
		})
	})
	router.GET("/v1/requests", func(ctx *gin.Context) {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"pending_requests": manager.Store().PendingRequests(),
		})
	})
	router.POST("/v1/pair", func(ctx *gin.Context) {
		defer func() {
			if i := recover(); i != nil {
				log.Error(errors.ErrorfAndReport("%v", i))
			}
		}()
		var body struct {
			URI string `json:"uri"`
		}
		if err := ctx.BindJSON(&body); err != nil || body.URI == "" {
			ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
				"error": "uri not present",
			})
			return
		}
		if err := manager.Connect(ctx.Request.Context(), body.URI); err != nil {
			ctx.JSONP(http.StatusOK, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"success": true,
		})
	})
	// Companion-device handshake: arm the one-shot sync gate and hand out
	// a fresh pairing QR for the peer device to scan.
	router.GET("/v1/sync-qr", func(ctx *gin.Context) {
		uri, err := client.NewPairingURI()
		if err != nil {
			ctx.JSONP(http.StatusInternalServerError, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		png, err := walletconnect.PairingQRCode(uri.String())
		if err != nil {
			ctx.JSONP(http.StatusInternalServerError, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		manager.PrepareSyncAccount()
		ctx.Data(http.StatusOK, "image/png", png)
	})
	// Manual profile pull over an already settled session.
	router.POST("/v1/sync", func(ctx *gin.Context) {
		if err := manager.RequestAccountInfo(ctx.Request.Context()); err != nil {
			ctx.JSONP(http.StatusOK, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"success": true,
		})
	})
	router.POST("/v1/disconnect", func(ctx *gin.Context) {
		var body struct {
			Topic string `json:"topic"`
		}
		if err := ctx.BindJSON(&body); err != nil || body.Topic == "" {
			ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
				"error": "topic not present",
			})
			return
		}
		if err := manager.Disconnect(ctx.Request.Context(), body.Topic); err != nil {
			ctx.JSONP(http.StatusOK, map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"success": true,
		})
	})

	if err := router.Run(listen); err != nil {
		log.Fatal(err)
	}
}
