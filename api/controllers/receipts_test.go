package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/api/middleware"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/internal/refunds"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
)

type fakeReceiptService struct {
	uploads []receipts.UploadInput
	filters []receipts.ListFilter
	updates []receipts.UpdateInput
	deleted []uuid.UUID
	receipt models.Receipt
	list    *receipts.ListResult
	err     error
}

func (f *fakeReceiptService) Upload(_ context.Context, input receipts.UploadInput) (*models.Receipt, error) {
	f.uploads = append(f.uploads, input)
	if f.err != nil {
		return nil, f.err
	}
	r := f.receipt
	r.AccountID = input.AccountID
	r.VehicleID = input.VehicleID
	return &r, nil
}

func (f *fakeReceiptService) List(_ context.Context, filter receipts.ListFilter) (*receipts.ListResult, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeReceiptService) Get(_ context.Context, accountID, receiptID uuid.UUID) (*refunds.Annotated, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &refunds.Annotated{Receipt: f.receipt, Refund: refunds.Result{Eligible: true, Amount: decimal.RequireFromString("0.7900"), Display: decimal.RequireFromString("0.79")}}, nil
}

func (f *fakeReceiptService) Update(_ context.Context, input receipts.UpdateInput) (*refunds.Annotated, error) {
	f.updates = append(f.updates, input)
	if f.err != nil {
		return nil, f.err
	}
	return &refunds.Annotated{Receipt: f.receipt, Refund: refunds.Result{Reason: enums.RefundReasonOutOfState}}, nil
}

func (f *fakeReceiptService) Delete(_ context.Context, accountID, receiptID, actorID uuid.UUID) error {
	f.deleted = append(f.deleted, receiptID)
	return f.err
}

var (
	testAccount = uuid.MustParse("4b1d3c1e-7a3f-4c53-9f52-1f1f7b7f0a01")
	testUser    = uuid.MustParse("4b1d3c1e-7a3f-4c53-9f52-1f1f7b7f0a02")
)

func sampleReceipt() models.Receipt {
	return models.Receipt{
		ID:               uuid.New(),
		AccountID:        testAccount,
		PurchaseDate:     time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
		StationName:      "QuikTrip",
		FuelType:         enums.FuelTypeGasoline,
		Gallons:          decimal.NewNullDecimal(decimal.RequireFromString("10.000")),
		ProcessingStatus: enums.ProcessingStatusCompleted,
		FiscalYear:       "2024-2025",
	}
}

// scoped mimics Auth + AccountAccess having run.
func scoped(req *http.Request, params map[string]string) *http.Request {
	ctx := middleware.WithUserID(req.Context(), testUser.String())
	ctx = middleware.WithAccountID(ctx, testAccount.String())
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func multipartUpload(t *testing.T, file []byte, vehicleID string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if file != nil {
		part, err := mw.CreateFormFile("file", "receipt.jpg")
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if vehicleID != "" {
		if err := mw.WriteField("vehicleId", vehicleID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error.Code
}

func TestReceiptUploadCreatesPendingReceipt(t *testing.T) {
	svc := &fakeReceiptService{receipt: models.Receipt{ID: uuid.New(), StationName: models.PlaceholderStationName, ProcessingStatus: enums.ProcessingStatusPending}}
	vehicle := uuid.New()
	body, contentType := multipartUpload(t, []byte("\xff\xd8\xff\xe0jpeg"), vehicle.String())
	req := scoped(httptest.NewRequest(http.MethodPost, "/upload", body), nil)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	ReceiptUpload(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.uploads) != 1 {
		t.Fatalf("expected one upload")
	}
	in := svc.uploads[0]
	if in.AccountID != testAccount || in.UploadedBy != testUser {
		t.Fatalf("unexpected upload scope %+v", in)
	}
	if in.VehicleID == nil || *in.VehicleID != vehicle {
		t.Fatalf("expected vehicle %s", vehicle)
	}
	if string(in.Data) != "\xff\xd8\xff\xe0jpeg" {
		t.Fatalf("unexpected file bytes")
	}

	var view receiptView
	decodeData(t, rec, &view)
	if view.ProcessingStatus != enums.ProcessingStatusPending || view.Refund != nil {
		t.Fatalf("expected pending receipt without refund, got %+v", view)
	}
}

func TestReceiptUploadRequiresFile(t *testing.T) {
	svc := &fakeReceiptService{}
	body, contentType := multipartUpload(t, nil, "")
	req := scoped(httptest.NewRequest(http.MethodPost, "/upload", body), nil)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	ReceiptUpload(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if len(svc.uploads) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestReceiptUploadRejectsOversizedRequest(t *testing.T) {
	svc := &fakeReceiptService{}
	body, contentType := multipartUpload(t, bytes.Repeat([]byte("a"), 4096), "")
	req := scoped(httptest.NewRequest(http.MethodPost, "/upload", body), nil)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	middleware.BodyLimit(1024)(ReceiptUpload(svc, nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", rec.Code)
	}
}

func TestReceiptUploadQuotaExceeded(t *testing.T) {
	svc := &fakeReceiptService{err: pkgerrors.New(pkgerrors.CodeQuotaExceeded, "receipt limit reached").
		WithDetails(map[string]any{"reason": enums.QuotaDenyReceiptLimitReached})}
	body, contentType := multipartUpload(t, []byte("img"), "")
	req := scoped(httptest.NewRequest(http.MethodPost, "/upload", body), nil)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	ReceiptUpload(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED got %s", code)
	}
}

func TestReceiptListAppliesFilters(t *testing.T) {
	receipt := sampleReceipt()
	svc := &fakeReceiptService{list: &receipts.ListResult{
		Receipts: []refunds.Annotated{{Receipt: receipt, Refund: refunds.Result{Eligible: true, Display: decimal.RequireFromString("0.79")}}},
		Totals:   map[string]decimal.Decimal{"2024-2025": decimal.RequireFromString("0.79")},
	}}
	vehicle := uuid.New()
	req := scoped(httptest.NewRequest(http.MethodGet, "/receipts?fiscalYear=2024-2025&status=completed&vehicleId="+vehicle.String(), nil), nil)
	rec := httptest.NewRecorder()

	ReceiptList(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	filter := svc.filters[0]
	if filter.AccountID != testAccount || filter.FiscalYear != "2024-2025" {
		t.Fatalf("unexpected filter %+v", filter)
	}
	if filter.Status == nil || *filter.Status != enums.ProcessingStatusCompleted {
		t.Fatalf("expected status filter")
	}
	if filter.VehicleID == nil || *filter.VehicleID != vehicle {
		t.Fatalf("expected vehicle filter")
	}

	var view struct {
		Receipts []struct {
			PurchaseDate string `json:"purchaseDate"`
			Refund       struct {
				Eligible bool   `json:"eligible"`
				Amount   string `json:"amount"`
			} `json:"refund"`
		} `json:"receipts"`
		Totals map[string]string `json:"totals"`
	}
	decodeData(t, rec, &view)
	if len(view.Receipts) != 1 || view.Receipts[0].Refund.Amount != "0.79" || !view.Receipts[0].Refund.Eligible {
		t.Fatalf("unexpected receipts %+v", view.Receipts)
	}
	if view.Receipts[0].PurchaseDate != "2024-08-15" {
		t.Fatalf("unexpected purchase date %s", view.Receipts[0].PurchaseDate)
	}
	if view.Totals["2024-2025"] != "0.79" {
		t.Fatalf("unexpected totals %v", view.Totals)
	}
}

func TestReceiptListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"fiscalYear=2024", "status=done", "vehicleId=nope"} {
		svc := &fakeReceiptService{}
		req := scoped(httptest.NewRequest(http.MethodGet, "/receipts?"+query, nil), nil)
		rec := httptest.NewRecorder()
		ReceiptList(svc, nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, rec.Code)
		}
		if len(svc.filters) != 0 {
			t.Fatalf("%s: service should not be called", query)
		}
	}
}

func TestReceiptGetAnnotates(t *testing.T) {
	receipt := sampleReceipt()
	svc := &fakeReceiptService{receipt: receipt}
	req := scoped(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"receiptId": receipt.ID.String()})
	rec := httptest.NewRecorder()

	ReceiptGet(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view receiptView
	decodeData(t, rec, &view)
	if view.Refund == nil || !view.Refund.Eligible || view.Refund.Amount.String() != "0.79" {
		t.Fatalf("expected annotated refund, got %+v", view.Refund)
	}
}

func TestReceiptGetNotFound(t *testing.T) {
	svc := &fakeReceiptService{err: pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")}
	req := scoped(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"receiptId": uuid.NewString()})
	rec := httptest.NewRecorder()

	ReceiptGet(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestReceiptGetRejectsMalformedID(t *testing.T) {
	req := scoped(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"receiptId": "abc"})
	rec := httptest.NewRecorder()
	ReceiptGet(&fakeReceiptService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestReceiptUpdateMapsPayload(t *testing.T) {
	receipt := sampleReceipt()
	svc := &fakeReceiptService{receipt: receipt}
	body := `{"purchaseDate":"2025-07-01","sellerState":"ks","fuelType":"diesel","gallons":12.5,"totalAmount":null,"vehicleId":null}`
	req := scoped(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), map[string]string{"receiptId": receipt.ID.String()})
	rec := httptest.NewRecorder()

	ReceiptUpdate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	in := svc.updates[0]
	if in.ReceiptID != receipt.ID || in.AccountID != testAccount || in.ActorID != testUser {
		t.Fatalf("unexpected target %+v", in)
	}
	if in.PurchaseDate == nil || in.PurchaseDate.Format("2006-01-02") != "2025-07-01" {
		t.Fatalf("unexpected purchase date %v", in.PurchaseDate)
	}
	if in.FuelType == nil || *in.FuelType != enums.FuelTypeDiesel {
		t.Fatalf("expected diesel")
	}
	if in.SellerState == nil || *in.SellerState != "ks" {
		t.Fatalf("expected raw seller state passed through, got %v", in.SellerState)
	}
	if !in.Gallons.Valid || in.Gallons.Text() != "12.5" {
		t.Fatalf("unexpected gallons %+v", in.Gallons)
	}
	if !in.TotalAmount.Valid || in.TotalAmount.Value != nil {
		t.Fatalf("expected explicit null total amount")
	}
	if in.PricePerGallon.Valid {
		t.Fatalf("absent field should stay unset")
	}
	if !in.VehicleID.Valid || in.VehicleID.Value != nil {
		t.Fatalf("expected vehicle cleared")
	}
}

func TestReceiptUpdateValidation(t *testing.T) {
	cases := map[string]string{
		"bad date":      `{"purchaseDate":"07/01/2025"}`,
		"bad state":     `{"sellerState":"Missouri"}`,
		"bad fuel":      `{"fuelType":"kerosene"}`,
		"unknown field": `{"imageRef":"x"}`,
		"boolean":       `{"gallons":true}`,
	}
	for name, body := range cases {
		svc := &fakeReceiptService{}
		req := scoped(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), map[string]string{"receiptId": uuid.NewString()})
		rec := httptest.NewRecorder()
		ReceiptUpdate(svc, nil).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, rec.Code)
		}
		if len(svc.updates) != 0 {
			t.Fatalf("%s: service should not be called", name)
		}
	}
}

func TestReceiptUpdatePassesAmountTextToService(t *testing.T) {
	cases := map[string]struct {
		body    string
		gallons string
		total   string
	}{
		"currency text": {body: `{"gallons":"12.5","totalAmount":"$1,234.50"}`, gallons: "12.5", total: "$1,234.50"},
		"free text":     {body: `{"gallons":"lots"}`, gallons: "lots"},
	}
	for name, tc := range cases {
		receipt := sampleReceipt()
		svc := &fakeReceiptService{receipt: receipt}
		req := scoped(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tc.body)), map[string]string{"receiptId": receipt.ID.String()})
		rec := httptest.NewRecorder()

		ReceiptUpdate(svc, nil).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", name, rec.Code, rec.Body.String())
		}
		if len(svc.updates) != 1 {
			t.Fatalf("%s: expected one service call, got %d", name, len(svc.updates))
		}
		in := svc.updates[0]
		if in.Gallons.Text() != tc.gallons || in.TotalAmount.Text() != tc.total {
			t.Fatalf("%s: unexpected amounts gallons=%q total=%q", name, in.Gallons.Text(), in.TotalAmount.Text())
		}
	}
}

func TestReceiptUpdateWhileProcessing(t *testing.T) {
	svc := &fakeReceiptService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "receipt is still being processed")}
	req := scoped(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"stationName":"Casey's"}`)), map[string]string{"receiptId": uuid.NewString()})
	rec := httptest.NewRecorder()

	ReceiptUpdate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestReceiptDelete(t *testing.T) {
	svc := &fakeReceiptService{}
	id := uuid.New()
	req := scoped(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"receiptId": id.String()})
	rec := httptest.NewRecorder()

	ReceiptDelete(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != id {
		t.Fatalf("unexpected deletes %v", svc.deleted)
	}
}

func TestReceiptHandlersRequireAccountContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	rec := httptest.NewRecorder()
	ReceiptList(&fakeReceiptService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}
