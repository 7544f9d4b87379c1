package config

// DefaultHeaders returns the browser header sets rotated across tile
// requests. A Host entry is ignored by the fetcher.
func DefaultHeaders() []map[string]string {
	return []map[string]string{
		// Edge 88 Windows 10
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.182 Safari/537.36 Edg/88.0.705.81",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-US,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
		// Firefox 85 on Windows 10
		{
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:85.0) Gecko/20100101 Firefox/85.0",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.5",
			"Referer":                   "http://maps.google.com",
			"DNT":                       "1",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
		},
		// Chrome 88 Windows 10
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.190 Safari/537.36",
			"Accept":                    "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
			"Accept-Language":           "en-GB,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
		// Opera for Windows 10
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.150 Safari/537.36 OPR/74.0.3911.160",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-US,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
		// Edge 88 Mac
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 11_2_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.182 Safari/537.36 Edg/88.0.705.81",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-GB,en;q=0.9,en-US;q=0.8",
			"Referer":                   "http://maps.google.com",
		},
		// Opera 74 Mac
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 11_2_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.150 Safari/537.36 OPR/74.0.3911.160",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-GB,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
		// Chrome 88 Mac
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 11_2_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.192 Safari/537.36",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Referer":                   "http://maps.google.com",
			"Accept-Language":           "en-GB,en;q=0.9",
		},
		// Firefox 85 Mac
		{
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.16; rv:86.0) Gecko/20100101 Firefox/86.0",
			"Accept":          "image/webp,*/*",
			"Accept-Language": "en-US,en;q=0.5",
			"Referer":         "http://maps.google.com",
			"DNT":             "1",
			"Connection":      "keep-alive",
		},
		// Safari 14 Mac
		{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Upgrade-Insecure-Requests": "1",
			"Host":                      "maps.google.com",
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Safari/605.1.15",
			"Accept-Language":           "en-ie",
			"Connection":                "keep-alive",
		},
		// Firefox 86 Ubuntu
		{
			"User-Agent":      "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:86.0) Gecko/20100101 Firefox/86.0",
			"Accept":          "image/webp,*/*",
			"Accept-Language": "en-GB,en;q=0.5",
			"Referer":         "http://maps.google.com",
			"DNT":             "1",
			"Connection":      "keep-alive",
		},
		// Chrome 88 Ubuntu
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.182 Safari/537.36",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-GB,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
		// Opera 74 Ubuntu
		{
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"User-Agent":                "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.150 Safari/537.36 OPR/74.0.3911.160",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
			"Accept-Language":           "en-GB,en;q=0.9",
			"Referer":                   "http://maps.google.com",
		},
	}
}
