package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"Dexter-Chain/sdk/go/dexter"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(dexter.Job{ID: "job-demo", Status: dexter.JobPending})
	})
	mux.HandleFunc("GET /api/v1/jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dexter.Job{
			ID:     "job-demo",
			Status: dexter.JobSucceeded,
			Result: &dexter.Outcome{
				Valid:      true,
				Iterations: 1,
				Reports: []dexter.Report{{
					AppliedOptimizations: []string{"Corrected target address to 0x2222222222222222222222222222222222222222"},
					Improvements:         []string{"Resolved 1 validation issues"},
				}},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := dexter.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.SubmitJob(ctx, "", dexter.Request{
		Transactions: []dexter.Transaction{{To: "0x1111111111111111111111111111111111111111", Value: "1000000000000000"}},
		Objective:    dexter.Objective{Type: "transfer", TargetAddress: "0x2222222222222222222222222222222222222222"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (%s)\n", job.ID, job.Status)

	done, err := client.WaitJob(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished: valid=%v iterations=%d\n", done.ID, done.Result.Valid, done.Result.Iterations)
	for _, report := range done.Result.Reports {
		fmt.Printf("  applied: %v\n", report.AppliedOptimizations)
	}
}
