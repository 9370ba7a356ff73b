package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Flag-driven client for poking the exchange API by hand.
func main() {
	// CLI Parameter Parsing
	serverAddr := flag.String("server", "http://127.0.0.1:9001", "Base URL of the exchange server")
	userID := flag.Int64("user", 0, "Acting user id (compulsory except for 'register', 'book' and 'trades')")
	action := flag.String("action", "place", "Action to perform: ['register', 'place', 'cancel', 'book', 'trades', 'profile']")

	// Registration Parameters
	username := flag.String("username", "", "Username to register")

	// Order Parameters
	symbolID := flag.Int64("symbol", 1, "Symbol id")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	priceStr := flag.String("price", "", "Limit price (omit for market orders)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Cancel Parameters
	orderID := flag.Int64("order", 0, "Id of the order to cancel")

	flag.Parse()

	client := resty.New().
		SetBaseURL(*serverAddr).
		SetHeader("Content-Type", "application/json")
	if *userID != 0 {
		client.SetHeader("X-User-ID", strconv.FormatInt(*userID, 10))
	}

	act := strings.ToLower(*action)
	if act != "register" && *userID == 0 && act != "book" && act != "trades" {
		fmt.Println("Error: -user is compulsory for this action.")
		flag.Usage()
		os.Exit(1)
	}

	switch act {
	case "register":
		if *username == "" {
			log.Fatal("Error: -username is required for registration")
		}
		show(client.R().
			SetBody(map[string]string{"username": *username}).
			Post("/api/users"))

	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			body := map[string]any{
				"symbol_id": *symbolID,
				"side":      strings.ToLower(*sideStr),
				"type":      strings.ToLower(*typeStr),
				"quantity":  qty,
			}
			if *priceStr != "" {
				body["price"] = *priceStr
			}
			fmt.Printf("-> %s %s %d on symbol %d\n", strings.ToUpper(*sideStr), *typeStr, qty, *symbolID)
			show(client.R().SetBody(body).Post("/api/orders"))
		}

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order is required for cancellation")
		}
		show(client.R().Delete(fmt.Sprintf("/api/orders/%d", *orderID)))

	case "book":
		show(client.R().Get(fmt.Sprintf("/api/symbols/%d/book", *symbolID)))

	case "trades":
		show(client.R().Get(fmt.Sprintf("/api/symbols/%d/trades", *symbolID)))

	case "profile":
		show(client.R().Get("/api/users/me"))

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// parseQuantities splits a comma-separated string into a slice of int64
func parseQuantities(input string) []int64 {
	parts := strings.Split(input, ",")
	var result []int64
	for _, p := range parts {
		q, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			log.Fatalf("Invalid quantity %q: %v", p, err)
		}
		result = append(result, q)
	}
	return result
}

// show prints the response body, flagging non-2xx statuses.
func show(resp *resty.Response, err error) {
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	if resp.IsError() {
		fmt.Printf("<- %s: %s\n", resp.Status(), resp.String())
		return
	}
	fmt.Printf("<- %s\n", resp.String())
}
