package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// AuthorResp represents the server's response when an author registers.
type AuthorResp struct {
	AuthorID string `json:"author_id"`
	Token    string `json:"token"`
	Username string `json:"-"`
}

// PostReq defines the request payload for creating a new post.
type PostReq struct {
	Text string `json:"text"`
}

// Post represents a post entity returned inside a feed page.
type Post struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`
}

// FeedPage mirrors the paginated feed response of GET /follow.
type FeedPage struct {
	Posts []Post `json:"posts"`
}

func main() {
	// CLI flags
	var serverAddr string
	var U, F, P, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&U, "authors", 50, "number of authors to register")
	flag.IntVar(&F, "follows", 10, "average follows per author")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for timeline delivery")
	flag.Parse()

	ctx := context.Background()

	// --- TLS setup for secure communication ---
	cert, err := tls.LoadX509KeyPair("../../certs/cert.pem", "../../certs/key.pem")
	if err != nil {
		panic(fmt.Sprintf("failed to load cert/key: %v", err))
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
			},
		},
		Timeout: 10 * time.Second,
		// Follow and post endpoints answer with redirects.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// --- 1) Register authors ---
	fmt.Printf("Registering %d authors...\n", U)
	authors := make([]AuthorResp, 0, U)
	for i := 0; i < U; i++ {
		// Generate unique username
		username := fmt.Sprintf("author-%d-%d", i, time.Now().UnixNano())
		payload := map[string]string{"username": username}
		b, _ := json.Marshal(payload)

		// Send POST request to register the author
		resp, err := client.Post(serverAddr+"/users", "application/json", bytes.NewReader(b))
		if err != nil {
			fmt.Printf("register author error: %v\n", err)
			os.Exit(1)
		}

		var ar AuthorResp
		if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
			resp.Body.Close()
			fmt.Printf("decode author resp error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		ar.Username = username
		authors = append(authors, ar)
	}
	fmt.Println("Authors registered successfully.")

	// --- 2) Build a token map for quick authorization lookup ---
	authorTokens := make(map[string]string, len(authors))
	for _, a := range authors {
		authorTokens[a.AuthorID] = a.Token
	}

	// --- 3) Create follow edges between authors ---
	fmt.Printf("Creating follows (~%d per author)...\n", F)
	followMap := make(map[string][]string)
	for _, a := range authors {
		for j := 0; j < F; j++ {
			followee := authors[rand.Intn(len(authors))]
			if followee.AuthorID == a.AuthorID {
				continue
			}
			req, _ := http.NewRequestWithContext(ctx, "GET",
				serverAddr+"/profile/"+followee.Username+"/follow", nil)
			req.Header.Set("Authorization", "Bearer "+a.Token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			resp.Body.Close()
			followMap[followee.AuthorID] = append(followMap[followee.AuthorID], a.AuthorID)
		}
	}
	fmt.Println("Follow edges established.")

	// --- 4) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	type postRecord struct {
		Marker   string
		AuthorID string
		Created  time.Time
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	postsCh := make(chan postRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := authors[rand.Intn(len(authors))]
			// Unique text marker so delivery can be matched in the feed
			marker := fmt.Sprintf("e2e post %d %d", rand.Int(), time.Now().UnixNano())
			reqBody := PostReq{Text: marker}
			b, _ := json.Marshal(reqBody)

			req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/create", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+author.Token)

			created := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode >= 400 {
				fmt.Printf("post rejected with status %d\n", resp.StatusCode)
				return
			}
			postsCh <- postRecord{Marker: marker, AuthorID: author.AuthorID, Created: created}
		}()
	}

	wg.Wait()
	close(postsCh)

	// --- 5) Verify post delivery to followers' timelines ---
	fmt.Println("Checking timeline delivery...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for pr := range postsCh {
		followers := followMap[pr.AuthorID]
		for _, fid := range followers {
			checksWg.Add(1)
			go func(pr postRecord, fid string) {
				defer checksWg.Done()
				deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
				found := false
				token := authorTokens[fid]

				// Poll the followed feed until the post appears or timeout
				for time.Now().Before(deadline) {
					req, _ := http.NewRequestWithContext(ctx, "GET", serverAddr+"/follow", nil)
					req.Header.Set("Authorization", "Bearer "+token)
					resp, err := client.Do(req)
					if err != nil {
						time.Sleep(200 * time.Millisecond)
						continue
					}

					var page FeedPage
					if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
						resp.Body.Close()
						time.Sleep(200 * time.Millisecond)
						continue
					}
					resp.Body.Close()

					for _, pp := range page.Posts {
						if pp.Text == pr.Marker {
							lat := time.Since(pr.Created).Seconds() * 1000
							latMu.Lock()
							latencies = append(latencies, lat)
							latMu.Unlock()
							found = true
							return
						}
					}
					time.Sleep(200 * time.Millisecond)
				}

				if !found {
					latMu.Lock()
					failCount++
					latMu.Unlock()
				}
			}(pr, fid)
		}
	}

	checksWg.Wait()

	// --- 6) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
	} else {
		trimPercent := 1.0
		meanVal := trimmedMean(latencies, trimPercent)
		p50 := trimmedPercentile(latencies, 50, trimPercent)
		p90 := trimmedPercentile(latencies, 90, trimPercent)
		p99 := trimmedPercentile(latencies, 99, trimPercent)
		fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
			len(latencies), meanVal, p50, p90, p99, failCount)

		// Export latencies to CSV
		f, _ := os.Create("e2e_latencies.csv")
		w := csv.NewWriter(f)
		w.Write([]string{"latency_ms"})
		for _, v := range latencies {
			w.Write([]string{fmt.Sprintf("%.3f", v)})
		}
		w.Flush()
		f.Close()
		fmt.Println("Saved e2e_latencies.csv")
	}
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	return percentile(data, p)
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f] * (float64(c) - k)
	d1 := data[c] * (k - float64(f))
	return d0 + d1
}
