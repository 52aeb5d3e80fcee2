package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourbook/internal/backend"
	"github.com/noah-isme/tourbook/internal/coupon"
	"github.com/noah-isme/tourbook/internal/pricing"
	"github.com/noah-isme/tourbook/internal/resilience"
	"github.com/noah-isme/tourbook/internal/roster"
)

func newClient(t *testing.T, srv *httptest.Server, cache *backend.Cache) *backend.Client {
	t.Helper()
	client, err := backend.New(backend.Options{
		BaseURL: srv.URL + "/api",
		HTTP:    resilience.Client{HTTP: srv.Client(), Timeout: time.Second},
		Cache:   cache,
	})
	require.NoError(t, err)
	return client
}

func TestPricesCombineTourAndSchedule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tour/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":3,"name":"Ha Long Bay","single_room_surcharge":"200000.00"}}`))
	})
	mux.HandleFunc("/api/tour_schedules/9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":9,"tour_id":3,"price_adult":"1000000.00","price_child":600000,"price_infant":"150000"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	prices, err := newClient(t, srv, nil).Prices(context.Background(), 3, 9)
	require.NoError(t, err)
	require.Equal(t, pricing.UnitPrices{Adult: 1_000_000, Child: 600_000, Infant: 150_000, SingleRoomSurcharge: 200_000}, prices)
}

func TestPricesRejectForeignSchedule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tour/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":3}`))
	})
	mux.HandleFunc("/api/tour_schedules/9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":9,"tour_id":4}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newClient(t, srv, nil).Prices(context.Background(), 3, 9)
	require.ErrorIs(t, err, backend.ErrScheduleMismatch)
}

func TestNotFoundMapsToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"tour not found"}}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv, nil).GetTour(context.Background(), 42)
	require.ErrorIs(t, err, backend.ErrNotFound)
	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "tour not found", apiErr.Message)
}

func TestListCouponsUsesCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/api/coupon/all", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"id":7,"code":"SUMMER10","discount_type":"percentage","discount_value":"10.00","min_order_amount":"1000000","max_discount_amount":"150000","valid_to":"2030-12-31"},
			{"id":8,"code":"FLAT50","discount_type":"FIXED","discount_value":50000,"min_order_amount":0,"max_discount_amount":null}
		]}`))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := newClient(t, srv, backend.NewCache(rdb, time.Minute))
	ctx := context.Background()

	first, err := client.ListCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, coupon.Percentage, first[0].DiscountType)
	require.Equal(t, 10.0, first[0].DiscountValue)
	require.NotNil(t, first[0].MaxDiscountAmount)
	require.Equal(t, int64(150_000), *first[0].MaxDiscountAmount)
	require.NotNil(t, first[0].ValidTo)
	require.Equal(t, 23, first[0].ValidTo.Hour())
	require.Nil(t, first[1].MaxDiscountAmount)

	second, err := client.ListCoupons(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, first[1], second[1])

	mr.FastForward(2 * time.Minute)
	_, err = client.ListCoupons(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	require.NoError(t, client.InvalidateCoupons(ctx))
	require.False(t, mr.Exists("tourbook:coupons:all"))
	_, err = client.ListCoupons(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, mr.Exists("tourbook:coupons:all"))
}

func TestInvalidateCouponsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	client := newClient(t, srv, nil)
	require.NoError(t, client.InvalidateCoupons(context.Background()))
}

func TestGetBookingMapsPassengers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":55,"tour_id":3,"schedule_id":9,"coupon_id":null,
			"contact_name":"Lan","contact_email":"lan@gmail.com","contact_phone":"0912345678",
			"passengers":[
				{"category":"ADULT","full_name":"Lan","date_of_birth":"1990-04-01T00:00:00.000Z","gender":"female","id_number":"012345678901","single_room":1},
				{"category":"INFANT","full_name":"Bao","date_of_birth":"2024-12-01","gender":"MALE","id_number":null,"single_room":0},
				{"category":"PET","full_name":"Rex"}
			]}}`))
	}))
	defer srv.Close()

	booking, err := newClient(t, srv, nil).GetBooking(context.Background(), 55)
	require.NoError(t, err)
	require.Equal(t, int64(55), booking.ID)
	require.Nil(t, booking.CouponID)
	require.Len(t, booking.Passengers, 2)
	require.Equal(t, roster.Adult, booking.Passengers[0].Category)
	require.Equal(t, "1990-04-01", booking.Passengers[0].DateOfBirth)
	require.Equal(t, roster.Female, booking.Passengers[0].Gender)
	require.True(t, bool(booking.Passengers[0].SingleRoom))
	require.Equal(t, roster.Infant, booking.Passengers[1].Category)
	require.Empty(t, booking.Passengers[1].IDNumber)
}

func TestCreateBookingSendsPayload(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/booking/create", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":101,"status":"PENDING"}}`))
	}))
	defer srv.Close()

	couponID := int64(7)
	receipt, err := newClient(t, srv, nil).CreateBooking(context.Background(), backend.BookingRequest{
		TourID:     3,
		ScheduleID: 9,
		CouponID:   &couponID,
		NumAdults:  1,
		Passengers: []roster.Passenger{{Category: roster.Adult, FullName: "Lan", Gender: roster.Female, SingleRoom: true}},
	})
	require.NoError(t, err)
	require.Equal(t, backend.Receipt{BookingID: 101, Status: "PENDING"}, receipt)
	require.Equal(t, float64(7), received["coupon_id"])
	require.NotContains(t, received, "booking_id")
	passengers := received["passengers"].([]any)
	require.Equal(t, float64(1), passengers[0].(map[string]any)["single_room"])
}

func TestUpdateBookingRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, nil).UpdateBooking(context.Background(), backend.BookingRequest{TourID: 3})
	require.ErrorIs(t, err, backend.ErrInvalidID)
}

func TestUpdateBookingFallsBackToRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		_, _ = w.Write([]byte(`{"message":"updated"}`))
	}))
	defer srv.Close()

	receipt, err := newClient(t, srv, nil).UpdateBooking(context.Background(), backend.BookingRequest{BookingID: 55})
	require.NoError(t, err)
	require.Equal(t, int64(55), receipt.BookingID)
	require.Equal(t, "updated", receipt.Message)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := backend.New(backend.Options{BaseURL: "ftp://example.com", HTTP: resilience.Client{}})
	require.Error(t, err)
	_, err = backend.New(backend.Options{BaseURL: "http://example.com"})
	require.Error(t, err)
}
