package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/models"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/gin-gonic/gin"
)

// errorStatus maps domain failures onto HTTP status codes. Anything unknown is a 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorNumberMismatch):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrorValidation),
		errors.Is(err, utils.ErrorInvalidQuantity),
		errors.Is(err, utils.ErrorBatchSkuMismatch),
		errors.Is(err, utils.ErrorInvalidStatusTransition),
		errors.Is(err, utils.ErrorInvalidDocumentType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err. Server errors go to c.Errors for customErrorLogger and
// are not echoed to the client.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(status, gin.H{"error": "internal error", "correlation_id": cid})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON only decodes the body. The binding tags are checked once, by the models call.
func bindJSON(c *gin.Context, dest any) bool {
	if err := json.NewDecoder(c.Request.Body).Decode(dest); err != nil {
		respondError(c, fmt.Errorf("%w: request body: %v", utils.ErrorValidation, err))
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func listSequenceCountersHandler(c *gin.Context) {
	counters, err := models.GetSequenceCounters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counters)
}

func createSequenceCounterHandler(c *gin.Context) {
	var input models.NewSequenceCounter
	if !bindJSON(c, &input) {
		return
	}
	counter, err := models.CreateSequenceCounter(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, counter)
}

func updateSequenceCounterHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.UpdateSequenceCounterInput
	if !bindJSON(c, &input) {
		return
	}
	counter, err := models.UpdateSequenceCounter(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counter)
}

func nextDocumentNumberHandler(c *gin.Context) {
	name := c.Param("name")
	next, err := models.GetNextDocumentNumber(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "document_number": next})
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if !bindJSON(c, &input) {
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func receiveStockBatchHandler(c *gin.Context) {
	var input models.NewStockBatch
	if !bindJSON(c, &input) {
		return
	}
	batch, err := models.ReceiveStockBatch(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func listStockBatchesHandler(c *gin.Context) {
	sku := c.Query("sku")
	if sku == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
		return
	}
	ctx := c.Request.Context()
	batches, err := models.GetStockBatchesBySku(ctx, sku)
	if err != nil {
		respondError(c, err)
		return
	}
	available, err := models.GetAvailableUnitsBySku(ctx, sku)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "units_available": available, "batches": batches})
}

func createDocumentHandler(c *gin.Context) {
	var input models.NewDocument
	if !bindJSON(c, &input) {
		return
	}
	doc, err := models.CreateDocument(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func getDocumentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	doc, err := models.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func updatePickUpSlipStatusHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewPickUpSlipStatus
	if !bindJSON(c, &input) {
		return
	}
	doc, err := models.UpdatePickUpSlipStatus(c.Request.Context(), id, &input)
	if err != nil {
		if errors.Is(err, utils.ErrorInsufficientStock) {
			config.GetLogger().WithField("document_id", id).Warn(err.Error())
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
