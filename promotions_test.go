package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const promotionsFixture = `{
  "data": {
    "Catalog": {
      "searchStore": {
        "elements": [
          {
            "title": "Control",
            "productSlug": "control",
            "price": {"totalPrice": {"discountPrice": 0, "originalPrice": 2999}},
            "promotions": {
              "promotionalOffers": [
                {"promotionalOffers": [{"startDate": "2025-01-09T16:00:00.000Z", "endDate": "2025-01-16T16:00:00.000Z"}]}
              ]
            }
          },
          {
            "title": "Paid Thing",
            "productSlug": "paid-thing",
            "price": {"totalPrice": {"discountPrice": 1999, "originalPrice": 1999}},
            "promotions": {
              "promotionalOffers": [
                {"promotionalOffers": [{"startDate": "2025-01-09T16:00:00.000Z", "endDate": "2025-01-16T16:00:00.000Z"}]}
              ]
            }
          },
          {
            "title": "Next Week",
            "productSlug": "next-week",
            "price": {"totalPrice": {"discountPrice": 0, "originalPrice": 1499}},
            "promotions": {"promotionalOffers": []}
          },
          {
            "title": "Mapped Only",
            "productSlug": "",
            "catalogNs": {"mappings": [{"pageSlug": "mapped-only", "pageType": "productHome"}]},
            "price": {"totalPrice": {"discountPrice": 0}},
            "promotions": {
              "promotionalOffers": [
                {"promotionalOffers": [{"startDate": "2025-01-09T16:00:00.000Z", "endDate": "2025-01-16T16:00:00.000Z"}]}
              ]
            }
          },
          {
            "title": "Slugless",
            "productSlug": "",
            "price": {"totalPrice": {"discountPrice": 0}},
            "promotions": {
              "promotionalOffers": [
                {"promotionalOffers": [{"startDate": "2025-01-09T16:00:00.000Z", "endDate": "2025-01-16T16:00:00.000Z"}]}
              ]
            }
          }
        ]
      }
    }
  }
}`

func TestParsePromotions(t *testing.T) {
	games, err := parsePromotions([]byte(promotionsFixture))
	require.NoError(t, err)

	require.Len(t, games, 2, "paid, upcoming-only, and slugless entries are filtered out")

	require.Equal(t, "Control", games[0].Title)
	require.Equal(t, "control", games[0].Slug)
	require.Equal(t, storeProductBase+"control", games[0].URL)

	require.Equal(t, "Mapped Only", games[1].Title)
	require.Equal(t, "mapped-only", games[1].Slug)
}

func TestParsePromotionsTrimsHomeSuffix(t *testing.T) {
	body := `{"data":{"Catalog":{"searchStore":{"elements":[
	  {"title":"Suffix Game","productSlug":"suffix-game/home",
	   "price":{"totalPrice":{"discountPrice":0}},
	   "promotions":{"promotionalOffers":[{"promotionalOffers":[{"startDate":"x","endDate":"y"}]}]}}
	]}}}}`

	games, err := parsePromotions([]byte(body))
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, "suffix-game", games[0].Slug)
}

func TestParsePromotionsInvalidJSON(t *testing.T) {
	_, err := parsePromotions([]byte("{not json"))
	require.Error(t, err)
}

func TestFetchPromotions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(promotionsFixture))
	}))
	defer server.Close()

	games, err := FetchPromotions(server.Client(), server.URL)
	require.NoError(t, err)
	require.Len(t, games, 2)
}

func TestFetchPromotionsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := FetchPromotions(server.Client(), server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
