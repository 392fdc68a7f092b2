package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinrec/clinrec/internal/config"
	"github.com/clinrec/clinrec/internal/domain/account"
	"github.com/clinrec/clinrec/internal/domain/condition"
	"github.com/clinrec/clinrec/internal/domain/consent"
	"github.com/clinrec/clinrec/internal/domain/diagnosticreport"
	"github.com/clinrec/clinrec/internal/domain/encounter"
	"github.com/clinrec/clinrec/internal/domain/observation"
	"github.com/clinrec/clinrec/internal/domain/organization"
	"github.com/clinrec/clinrec/internal/domain/patient"
	"github.com/clinrec/clinrec/internal/domain/practitioner"
	"github.com/clinrec/clinrec/internal/platform/db"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			return runSeed(patients)
		},
	}
	cmd.Flags().Int("patients", 25, "Number of demo patients to create")
	return cmd
}

func runSeed(patientCount int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	orgRepo := organization.NewRepo(pool)
	practRepo := practitioner.NewRepo(pool)
	patientRepo := patient.NewRepo(pool)
	encounterRepo := encounter.NewRepo(pool)
	conditionRepo := condition.NewRepo(pool)
	observationRepo := observation.NewRepo(pool)
	reportRepo := diagnosticreport.NewRepo(pool)
	consentRepo := consent.NewRepo(pool)
	userRepo := account.NewRepo(pool)

	// Admin account for poking at the API.
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme-now"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &account.User{
		Name:         "Demo Admin",
		Email:        "admin@clinrec.example",
		PasswordHash: string(hash),
		Role:         account.RoleAdmin,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	fmt.Println("admin user: admin@clinrec.example / changeme-now")

	orgTypes := []string{"hospital", "clinic", "laboratory"}
	var orgs []*organization.Organization
	for i := 0; i < 3; i++ {
		phone := faker.Phone()
		email := faker.Email()
		address := faker.Address().Address
		org := &organization.Organization{
			Name:    faker.Company(),
			Type:    &orgTypes[i%len(orgTypes)],
			Phone:   &phone,
			Email:   &email,
			Address: &address,
		}
		if err := orgRepo.Create(ctx, org); err != nil {
			return fmt.Errorf("seed organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	specialties := []string{"cardiology", "pediatrics", "general medicine", "dermatology"}
	var practitioners []*practitioner.Practitioner
	for i := 0; i < 8; i++ {
		specialty := specialties[i%len(specialties)]
		email := faker.Email()
		p := &practitioner.Practitioner{
			Identifier:     fmt.Sprintf("LIC-%06d", faker.Number(100000, 999999)),
			FirstName:      faker.FirstName(),
			LastName:       faker.LastName(),
			Specialty:      &specialty,
			Email:          &email,
			OrganizationID: &orgs[i%len(orgs)].ID,
			Active:         i != 0, // one inactive practitioner for realism
		}
		if err := practRepo.Create(ctx, p); err != nil {
			return fmt.Errorf("seed practitioner: %w", err)
		}
		practitioners = append(practitioners, p)
	}
	active := practitioners[1:]

	encounterTypes := []string{"consulta", "urgencia", "control", "telemedicina"}
	statuses := []string{encounter.StatusPlanned, encounter.StatusInProgress, encounter.StatusFinished, encounter.StatusCancelled}
	loincCodes := []struct {
		code string
		unit string
		low  float64
		high float64
	}{
		{"718-7", "g/dL", 12.0, 17.5},   // hemoglobin
		{"2345-7", "mg/dL", 70, 100},    // glucose
		{"6690-2", "10*3/uL", 4.5, 11},  // WBC
		{"2093-3", "mg/dL", 0, 200},     // cholesterol
	}
	icdCodes := []string{"E11.9", "I10", "J45.909", "M54.5", "K21.9"}

	for i := 0; i < patientCount; i++ {
		dob := faker.DateRange(
			time.Now().AddDate(-90, 0, 0),
			time.Now().AddDate(-1, 0, 0),
		)
		phone := faker.Phone()
		email := faker.Email()
		address := faker.Address().Address
		suffix := strings.ToUpper(faker.LetterN(2))
		p := &patient.Patient{
			Identifier:  fmt.Sprintf("%04d-%s", 1000+i, suffix),
			FirstName:   faker.FirstName(),
			LastName:    faker.LastName(),
			DateOfBirth: dob,
			Gender:      faker.RandomString([]string{"male", "female", "other", "unknown"}),
			Phone:       &phone,
			Email:       &email,
			Address:     &address,
		}
		if err := patientRepo.Create(ctx, p); err != nil {
			return fmt.Errorf("seed patient: %w", err)
		}

		// A consent per patient, in varying states.
		grant := &consent.Consent{
			PatientID:  p.ID,
			GrantedTo:  orgs[i%len(orgs)].ID,
			Scope:      faker.RandomString([]string{consent.ScopeFull, consent.ScopePartial}),
			ValidFrom:  time.Now().AddDate(0, -faker.Number(0, 18), 0),
			ValidUntil: time.Now().AddDate(1, 0, 0),
			Revoked:    faker.Number(0, 9) == 0,
		}
		if faker.Number(0, 4) == 0 {
			grant.ValidUntil = time.Now().AddDate(0, -1, 0) // expired
		}
		if err := consentRepo.Create(ctx, grant); err != nil {
			return fmt.Errorf("seed consent: %w", err)
		}

		for j := 0; j < faker.Number(1, 3); j++ {
			pract := active[faker.Number(0, len(active)-1)]
			reason := faker.Sentence(6)
			enc := &encounter.Encounter{
				PatientID:      p.ID,
				PractitionerID: pract.ID,
				OrganizationID: pract.OrganizationID,
				EncounterDate:  faker.DateRange(time.Now().AddDate(-2, 0, 0), time.Now()),
				EncounterType:  encounterTypes[faker.Number(0, len(encounterTypes)-1)],
				Status:         statuses[faker.Number(0, len(statuses)-1)],
				Reason:         &reason,
			}
			if err := encounterRepo.Create(ctx, enc); err != nil {
				return fmt.Errorf("seed encounter: %w", err)
			}

			desc := faker.Sentence(8)
			recorded := enc.EncounterDate
			cond := &condition.Condition{
				EncounterID:  enc.ID,
				PatientID:    p.ID,
				Code:         icdCodes[faker.Number(0, len(icdCodes)-1)],
				Description:  &desc,
				RecordedDate: &recorded,
			}
			if err := conditionRepo.Create(ctx, cond); err != nil {
				return fmt.Errorf("seed condition: %w", err)
			}

			lab := loincCodes[faker.Number(0, len(loincCodes)-1)]
			observedAt := enc.EncounterDate
			obs := &observation.Observation{
				EncounterID: enc.ID,
				PatientID:   p.ID,
				Code:        lab.code,
				Value:       fmt.Sprintf("%.1f", faker.Float64Range(lab.low*0.8, lab.high*1.2)),
				Unit:        &lab.unit,
				RefLow:      &lab.low,
				RefHigh:     &lab.high,
				ObservedAt:  &observedAt,
			}
			if err := observationRepo.Create(ctx, obs); err != nil {
				return fmt.Errorf("seed observation: %w", err)
			}

			result := faker.Sentence(10)
			rep := &diagnosticreport.DiagnosticReport{
				EncounterID: enc.ID,
				PatientID:   p.ID,
				Type:        faker.RandomString([]string{"laboratorio", "imagen", "patologia"}),
				Result:      &result,
				Document: &diagnosticreport.Document{
					Status:     faker.RandomString([]string{"preliminary", "final"}),
					Category:   faker.RandomString([]string{"hematology", "chemistry", "radiology"}),
					Conclusion: faker.Sentence(8),
				},
			}
			if err := reportRepo.Create(ctx, rep); err != nil {
				return fmt.Errorf("seed diagnostic report: %w", err)
			}
		}
	}

	// Staff accounts bound to each organization so the consent gate has
	// something to evaluate against.
	for i, org := range orgs {
		hash, err := bcrypt.GenerateFromPassword([]byte("changeme-now"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		orgID := org.ID
		staff := &account.User{
			Name:           faker.Name(),
			Email:          fmt.Sprintf("staff%d@clinrec.example", i+1),
			PasswordHash:   string(hash),
			Role:           account.RoleStaff,
			OrganizationID: &orgID,
		}
		if err := userRepo.Create(ctx, staff); err != nil {
			return fmt.Errorf("seed staff user: %w", err)
		}
	}

	fmt.Printf("seeded %d patients across %d organizations\n", patientCount, len(orgs))
	return nil
}
