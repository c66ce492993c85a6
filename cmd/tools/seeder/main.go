package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedTariffs(db)
	seedPlan(db)
	seedOptions(db)
	seedStudents(db)

	log.Println("Seeding completed successfully!")
}

func seedTariffs(db *sql.DB) {
	tariffs := []struct {
		Classe      string
		Inscription int64
		Annual      int64
	}{
		{"Petite Section", 30000, 180000},
		{"Moyenne Section", 30000, 180000},
		{"Grande Section", 30000, 190000},
		{"CP", 35000, 200000},
		{"CE1", 35000, 200000},
		{"CE2", 35000, 210000},
		{"CM1", 40000, 220000},
		{"CM2", 40000, 230000},
	}

	fmt.Println("Seeding Tariffs...")
	for _, t := range tariffs {
		_, err := db.Exec(`
			INSERT INTO tariffs (classe, inscription_fee, annual_tuition_fee)
			VALUES ($1, $2, $3)
			ON CONFLICT (classe) DO UPDATE
			SET inscription_fee = EXCLUDED.inscription_fee,
			    annual_tuition_fee = EXCLUDED.annual_tuition_fee,
			    updated_at = now();
		`, t.Classe, t.Inscription, t.Annual)
		if err != nil {
			log.Printf("Failed to upsert tariff %s: %v", t.Classe, err)
		}
	}
}

func seedPlan(db *sql.DB) {
	tiers := []struct {
		Number  int
		Name    string
		Percent string
	}{
		{1, "Tranche 1", "50"},
		{2, "Tranche 2", "50"},
	}

	fmt.Println("Seeding Installment Plan...")
	for _, t := range tiers {
		_, err := db.Exec(`
			INSERT INTO installment_tiers (number, name, percentage_of_annual)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (number) DO UPDATE
			SET name = EXCLUDED.name, percentage_of_annual = EXCLUDED.percentage_of_annual;
		`, t.Number, t.Name, t.Percent)
		if err != nil {
			log.Printf("Failed to upsert tier %d: %v", t.Number, err)
		}
	}
	if _, err := db.Exec(`UPDATE plan_settings SET monthly_due_day = 5, updated_at = now() WHERE id = 1`); err != nil {
		log.Printf("Failed to update plan settings: %v", err)
	}
}

func seedOptions(db *sql.DB) {
	standard := map[string]int64{
		"tenueScolaire": 12000,
		"carteScolaire": 2000,
		"cooperative":   5000,
		"tenueEPS":      8000,
		"assurance":     3000,
	}

	fmt.Println("Seeding Options...")
	for key, price := range standard {
		_, err := db.Exec(`
			INSERT INTO standard_option_prices (option_key, price)
			VALUES ($1, $2)
			ON CONFLICT (option_key) DO UPDATE SET price = EXCLUDED.price;
		`, key, price)
		if err != nil {
			log.Printf("Failed to upsert option %s: %v", key, err)
		}
	}

	custom := []struct {
		ID    string
		Name  string
		Price int64
	}{
		{"opt-cantine", "Cantine", 15000},
		{"opt-transport", "Transport", 12000},
		{"opt-etude", "Étude surveillée", 6000},
	}
	for _, c := range custom {
		_, err := db.Exec(`
			INSERT INTO custom_options (id, name, price)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price;
		`, c.ID, c.Name, c.Price)
		if err != nil {
			log.Printf("Failed to upsert custom option %s: %v", c.ID, err)
		}
	}
}

func seedStudents(db *sql.DB) {
	students := []struct {
		ID         string
		Name       string
		Classe     string
		Enrollment string
		Mode       string
		Months     []string
		Count      int
		Standard   []string
		Custom     []string
	}{
		{"stu-0001", "Awa Diop", "CM1", "new", "monthly", []string{"Septembre", "Octobre", "Novembre"}, 0, []string{"tenueScolaire", "assurance"}, []string{"opt-cantine"}},
		{"stu-0002", "Moussa Traoré", "CM1", "renewal", "installments", nil, 2, []string{"assurance"}, nil},
		{"stu-0003", "Fatou Ndiaye", "CM1", "new", "installments", nil, 1, nil, []string{"opt-transport"}},
		{"stu-0004", "Ibrahima Sow", "CE2", "renewal", "monthly", nil, 0, []string{"carteScolaire"}, nil},
		{"stu-0005", "Aminata Ba", "CP", "new", "monthly", []string{"Septembre"}, 0, nil, []string{"opt-etude"}},
		{"stu-0006", "Cheikh Fall", "6EME", "new", "monthly", nil, 0, []string{"assurance"}, nil},
	}

	fmt.Println("Seeding Students...")
	for _, s := range students {
		_, err := db.Exec(`
			INSERT INTO students (id, full_name, classe, enrollment_type, payment_mode, selected_months,
				installment_count, selected_standard_options, selected_custom_option_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING;
		`, s.ID, s.Name, s.Classe, s.Enrollment, s.Mode, pq.Array(orEmpty(s.Months)), s.Count,
			pq.Array(orEmpty(s.Standard)), pq.Array(orEmpty(s.Custom)))
		if err != nil {
			log.Printf("Failed to seed student %s: %v", s.ID, err)
		}
	}

	// Legacy-shaped payments predate item tags; the reconciler still attributes them.
	fmt.Println("Seeding Payments...")
	_, err := db.Exec(`
		INSERT INTO payment_records (id, student_id, amount, type, paid_at, paid_months, description)
		VALUES
			('8b8f0f3e-3f4e-4f0a-9d55-0a6c1e0b0001', 'stu-0001', 40000, 'inscription', '2025-09-02T09:00:00Z', '{}', 'Inscription'),
			('8b8f0f3e-3f4e-4f0a-9d55-0a6c1e0b0002', 'stu-0001', 22000, 'tuition', '2025-09-02T09:00:00Z', '{Septembre}', 'Mensualité'),
			('8b8f0f3e-3f4e-4f0a-9d55-0a6c1e0b0003', 'stu-0002', 110000, 'tuition', '2025-09-10T10:30:00Z', '{"Tranche 1"}', 'Tranche 1'),
			('8b8f0f3e-3f4e-4f0a-9d55-0a6c1e0b0004', 'stu-0003', 12000, 'other', '2025-09-15T08:15:00Z', '{}', 'Option: Transport')
		ON CONFLICT (id) DO NOTHING;
	`)
	if err != nil {
		log.Printf("Failed to seed payments: %v", err)
	}
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
