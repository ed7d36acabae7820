// Command devtoken prints a bearer token for local testing.
//
//	devtoken -teacher t-1 -batches Udbhav,Samarth
//	devtoken -teacher admin -role admin -batches Udbhav,Samarth,Prakhar
//
// The secret is read from ATTENDANCE_JWT_SECRET like the server does.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/config"
)

func main() {
	teacher := flag.String("teacher", "", "teacher id (token subject)")
	role := flag.String("role", "teacher", "role claim")
	batches := flag.String("batches", "", "comma-separated permitted batches")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *teacher == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -teacher is required")
		os.Exit(2)
	}

	secret := os.Getenv("ATTENDANCE_JWT_SECRET")
	if secret == "" {
		secret = config.DevJWTSecret
	}

	token, err := api.NewAuthenticator(secret).Issue(attendance.Principal{
		TeacherID: attendance.TeacherID(*teacher),
		Role:      *role,
		Batches:   attendance.ParseBatches(*batches),
	}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
