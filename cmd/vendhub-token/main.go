// vendhub-token mints signed session tokens for operators, carrying the org
// binding and optional data residency consumed by vendhub-export.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/elite-vending/vendhub/pkg/auth"
	"github.com/elite-vending/vendhub/pkg/config"
	"github.com/elite-vending/vendhub/pkg/tenancy"
)

func main() {
	var (
		subject = flag.String("subject", "", "token subject (operator id)")
		orgID   = flag.String("org", "", "organization id (required)")
		unitID  = flag.String("unit", "", "organization unit id")
		region  = flag.String("region", "", "data residency region")
		bucket  = flag.String("bucket", "", "data residency storage bucket")
		kmsKey  = flag.String("kms-key", "", "data residency kms key")
		ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if *orgID == "" {
		log.Fatal("Usage: vendhub-token -org <org_id> [-subject id] [-unit id] [-region r -bucket b -kms-key k]")
	}

	cfg := config.Load()
	if cfg.SessionSecret == "" {
		log.Fatal("VENDHUB_SESSION_SECRET is required")
	}

	issuer, err := auth.NewIssuer([]byte(cfg.SessionSecret), *ttl)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}

	var res *tenancy.Residency
	if *region != "" || *bucket != "" || *kmsKey != "" {
		res = &tenancy.Residency{Region: *region, StorageBucket: *bucket, KMSKey: *kmsKey}
	}

	token, err := issuer.Issue(*subject, *orgID, *unitID, res)
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	fmt.Println(token)
}
