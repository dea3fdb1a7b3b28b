package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/api/middleware"
	"github.com/angelmondragon/fueltax-backend/api/responses"
	"github.com/angelmondragon/fueltax-backend/api/validators"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/internal/refunds"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/types"
)

const (
	receiptParam        = "receiptId"
	uploadFileField     = "file"
	uploadVehicleField  = "vehicleId"
	multipartMemoryCap  = 8 << 20
	purchaseDateLayout  = "2006-01-02"
	maxStationNameChars = 200
)

type refundView struct {
	Eligible bool               `json:"eligible"`
	Reason   enums.RefundReason `json:"reason,omitempty"`
	Amount   decimal.Decimal    `json:"amount"`
}

type receiptView struct {
	ID               uuid.UUID              `json:"id"`
	AccountID        uuid.UUID              `json:"accountId"`
	VehicleID        *uuid.UUID             `json:"vehicleId"`
	PurchaseDate     string                 `json:"purchaseDate"`
	StationName      string                 `json:"stationName"`
	SellerAddress    *string                `json:"sellerAddress"`
	SellerCity       *string                `json:"sellerCity"`
	SellerState      *string                `json:"sellerState"`
	SellerZip        *string                `json:"sellerZip"`
	FuelType         enums.FuelType         `json:"fuelType"`
	Gallons          decimal.NullDecimal    `json:"gallons"`
	PricePerGallon   decimal.NullDecimal    `json:"pricePerGallon"`
	TotalAmount      decimal.NullDecimal    `json:"totalAmount"`
	ProcessingStatus enums.ProcessingStatus `json:"processingStatus"`
	ProcessingError  *string                `json:"processingError"`
	FiscalYear       string                 `json:"fiscalYear"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
	CompletedAt      *time.Time             `json:"completedAt"`
	Refund           *refundView            `json:"refund,omitempty"`
}

type receiptListView struct {
	Receipts []receiptView             `json:"receipts"`
	Totals   map[string]decimal.Decimal `json:"totals"`
}

// updateReceiptPayload is a partial update; absent fields are left alone.
type updateReceiptPayload struct {
	VehicleID      types.NullableUUID   `json:"vehicleId"`
	PurchaseDate   *string              `json:"purchaseDate" validate:"omitempty,datetime=2006-01-02"`
	StationName    *string              `json:"stationName" validate:"omitempty,min=1,max=200"`
	SellerAddress  *string              `json:"sellerAddress" validate:"omitempty,max=200"`
	SellerCity     *string              `json:"sellerCity" validate:"omitempty,max=100"`
	SellerState    *string              `json:"sellerState" validate:"omitempty,len=2,alpha"`
	SellerZip      *string              `json:"sellerZip" validate:"omitempty,max=10"`
	FuelType       *string              `json:"fuelType" validate:"omitempty,oneof=gasoline diesel"`
	Gallons        types.NullableNumber `json:"gallons"`
	PricePerGallon types.NullableNumber `json:"pricePerGallon"`
	TotalAmount    types.NullableNumber `json:"totalAmount"`
}

func toReceiptView(r models.Receipt) receiptView {
	return receiptView{
		ID:               r.ID,
		AccountID:        r.AccountID,
		VehicleID:        r.VehicleID,
		PurchaseDate:     r.PurchaseDate.Format(purchaseDateLayout),
		StationName:      r.StationName,
		SellerAddress:    r.SellerAddress,
		SellerCity:       r.SellerCity,
		SellerState:      r.SellerState,
		SellerZip:        r.SellerZip,
		FuelType:         r.FuelType,
		Gallons:          r.Gallons,
		PricePerGallon:   r.PricePerGallon,
		TotalAmount:      r.TotalAmount,
		ProcessingStatus: r.ProcessingStatus,
		ProcessingError:  r.ProcessingError,
		FiscalYear:       r.FiscalYear,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		CompletedAt:      r.CompletedAt,
	}
}

func toAnnotatedView(a refunds.Annotated) receiptView {
	view := toReceiptView(a.Receipt)
	view.Refund = &refundView{
		Eligible: a.Refund.Eligible,
		Reason:   a.Refund.Reason,
		Amount:   a.Refund.Display,
	}
	return view
}

// ReceiptUpload accepts a multipart receipt image and queues it for extraction.
func ReceiptUpload(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		accountID, err := accountFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := r.ParseMultipartForm(multipartMemoryCap); err != nil {
			responses.WriteError(ctx, logg, w, multipartError(err))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, _, err := r.FormFile(uploadFileField)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(ctx, logg, w, multipartError(err))
			return
		}

		var vehicleID *uuid.UUID
		if raw := strings.TrimSpace(r.FormValue(uploadVehicleField)); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
				return
			}
			vehicleID = &parsed
		}

		receipt, err := svc.Upload(ctx, receipts.UploadInput{
			AccountID:  accountID,
			VehicleID:  vehicleID,
			UploadedBy: actorFromContext(ctx),
			Data:       data,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toReceiptView(*receipt))
	}
}

// ReceiptList returns the account's receipts with refunds and per fiscal
// year totals.
func ReceiptList(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		accountID, err := accountFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filter := receipts.ListFilter{AccountID: accountID}
		query := r.URL.Query()
		if fy := strings.TrimSpace(query.Get("fiscalYear")); fy != "" {
			if err := fiscal.Validate(fy); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year"))
				return
			}
			filter.FiscalYear = fy
		}
		if raw := strings.TrimSpace(query.Get("vehicleId")); raw != "" {
			vehicleID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
				return
			}
			filter.VehicleID = &vehicleID
		}
		if raw := strings.TrimSpace(query.Get("status")); raw != "" {
			status, err := enums.ParseProcessingStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		result, err := svc.List(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view := receiptListView{
			Receipts: make([]receiptView, 0, len(result.Receipts)),
			Totals:   result.Totals,
		}
		if view.Totals == nil {
			view.Totals = map[string]decimal.Decimal{}
		}
		for _, annotated := range result.Receipts {
			view.Receipts = append(view.Receipts, toAnnotatedView(annotated))
		}
		responses.WriteSuccess(w, view)
	}
}

// ReceiptGet returns one receipt for polling.
func ReceiptGet(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		accountID, receiptID, err := receiptTarget(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		annotated, err := svc.Get(ctx, accountID, receiptID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAnnotatedView(*annotated))
	}
}

// ReceiptUpdate applies a manual correction to a finished receipt.
func ReceiptUpdate(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		accountID, receiptID, err := receiptTarget(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateReceiptPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input, err := payload.toInput(accountID, receiptID, actorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		annotated, err := svc.Update(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAnnotatedView(*annotated))
	}
}

// ReceiptDelete removes the receipt image and row.
func ReceiptDelete(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		accountID, receiptID, err := receiptTarget(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, accountID, receiptID, actorFromContext(ctx)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (p updateReceiptPayload) toInput(accountID, receiptID, actorID uuid.UUID) (receipts.UpdateInput, error) {
	input := receipts.UpdateInput{
		AccountID:      accountID,
		ReceiptID:      receiptID,
		ActorID:        actorID,
		VehicleID:      p.VehicleID,
		StationName:    trimmed(p.StationName, maxStationNameChars),
		SellerAddress:  trimmed(p.SellerAddress, 0),
		SellerCity:     trimmed(p.SellerCity, 0),
		SellerState:    trimmed(p.SellerState, 0),
		SellerZip:      trimmed(p.SellerZip, 0),
		Gallons:        p.Gallons,
		PricePerGallon: p.PricePerGallon,
		TotalAmount:    p.TotalAmount,
	}
	if p.PurchaseDate != nil {
		date, err := time.Parse(purchaseDateLayout, *p.PurchaseDate)
		if err != nil {
			return receipts.UpdateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid purchase date")
		}
		input.PurchaseDate = &date
	}
	if p.FuelType != nil {
		fuel, err := enums.ParseFuelType(*p.FuelType)
		if err != nil {
			return receipts.UpdateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fuel type")
		}
		input.FuelType = &fuel
	}
	return input, nil
}

func trimmed(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxLen)
	return &clean
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Wrap(pkgerrors.CodePayloadSize, err, "upload too large").
			WithDetails(map[string]any{"maxBytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
}

func accountFromContext(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.AccountIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "account context missing")
	}
	accountID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id")
	}
	return accountID, nil
}

// actorFromContext returns uuid.Nil when the caller is unknown.
func actorFromContext(ctx context.Context) uuid.UUID {
	actor, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return actor
}

func receiptTarget(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	accountID, err := accountFromContext(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	receiptID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, receiptParam)))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid receipt id")
	}
	return accountID, receiptID, nil
}
