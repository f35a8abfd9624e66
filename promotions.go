package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultPromotionsURL = "https://store-site-backend-static.ak.epicgames.com/freeGamesPromotions?locale=en-US&country=US&allowCountries=US"

const storeProductBase = "https://store.epicgames.com/en-US/p/"

// PromotionGame is one entry of the weekly giveaway rotation.
type PromotionGame struct {
	Title string
	Slug  string
	URL   string
}

// FetchPromotions queries the storefront giveaway feed and returns the games
// whose promotion is live right now at a price of zero.
func FetchPromotions(client *http.Client, apiURL string) ([]PromotionGame, error) {
	req, err := http.NewRequest("GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create promotions request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch promotions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("promotions feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read promotions response: %w", err)
	}

	return parsePromotions(body)
}

func parsePromotions(body []byte) ([]PromotionGame, error) {
	var payload struct {
		Data struct {
			Catalog struct {
				SearchStore struct {
					Elements []promotionElement `json:"elements"`
				} `json:"searchStore"`
			} `json:"Catalog"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse promotions feed: %w", err)
	}

	var games []PromotionGame
	for _, el := range payload.Data.Catalog.SearchStore.Elements {
		if !el.currentlyFree() {
			continue
		}
		slug := el.slug()
		if slug == "" {
			continue
		}
		games = append(games, PromotionGame{
			Title: el.Title,
			Slug:  slug,
			URL:   storeProductBase + slug,
		})
	}

	return games, nil
}

type promotionElement struct {
	Title       string `json:"title"`
	ProductSlug string `json:"productSlug"`
	CatalogNs   struct {
		Mappings []struct {
			PageSlug string `json:"pageSlug"`
			PageType string `json:"pageType"`
		} `json:"mappings"`
	} `json:"catalogNs"`
	Price struct {
		TotalPrice struct {
			DiscountPrice int `json:"discountPrice"`
		} `json:"totalPrice"`
	} `json:"price"`
	Promotions struct {
		PromotionalOffers []struct {
			PromotionalOffers []struct {
				StartDate string `json:"startDate"`
				EndDate   string `json:"endDate"`
			} `json:"promotionalOffers"`
		} `json:"promotionalOffers"`
	} `json:"promotions"`
}

// currentlyFree keeps only offers with a live promotion window and a fully
// discounted price. Upcoming giveaways publish the same shape but under
// upcomingPromotionalOffers, which stays out of this list on purpose.
func (el promotionElement) currentlyFree() bool {
	if el.Price.TotalPrice.DiscountPrice != 0 {
		return false
	}
	for _, batch := range el.Promotions.PromotionalOffers {
		if len(batch.PromotionalOffers) > 0 {
			return true
		}
	}
	return false
}

// slug prefers the product slug and falls back to the first catalog page
// mapping; some listings only carry the latter.
func (el promotionElement) slug() string {
	if s := strings.TrimSpace(el.ProductSlug); s != "" && s != "[]" {
		return strings.TrimSuffix(s, "/home")
	}
	for _, m := range el.CatalogNs.Mappings {
		if m.PageType == "productHome" && m.PageSlug != "" {
			return m.PageSlug
		}
	}
	return ""
}
