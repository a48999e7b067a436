// internal/bot/api.go
package bot

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/net/proxy"
)

const apiTimeout = 90 * time.Second

// NewAPI connects to the Bot API, optionally through a self-hosted endpoint and a proxy.
// baseURL is the server root such as https://api.telegram.org; proxyURL is socks5://, http:// or https://.
func NewAPI(token, baseURL, proxyURL string) (*tgbotapi.BotAPI, error) {
	client, err := httpClient(proxyURL)
	if err != nil {
		return nil, err
	}

	endpoint := tgbotapi.APIEndpoint
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/bot%s/%s"
	}
	return tgbotapi.NewBotAPIWithClient(token, endpoint, client)
}

func httpClient(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: apiTimeout}
	if proxyURL == "" {
		return client, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse tg_proxy: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 proxy: dialer does not support contexts")
		}
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return cd.DialContext(ctx, network, addr)
			},
		}
	case "http", "https":
		client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	default:
		return nil, fmt.Errorf("unsupported tg_proxy scheme %q", u.Scheme)
	}
	return client, nil
}
