package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
)

// memLedger is an in-memory stand-in for the Postgres ledger shared by the service tests.
type memLedger struct {
	seq      int
	students map[string]*models.StudentDetail
	classes  map[string]*models.Class
	terms    map[string]*models.AcademicTerm
	fees     map[string]*models.TermFee
	balances map[string]*models.StudentBalance
	payments []*models.Payment
	vaults   map[string]*models.ArrearsVault
	escrows  []*models.VaultEscrow
}

func newMemLedger() *memLedger {
	return &memLedger{
		students: map[string]*models.StudentDetail{},
		classes:  map[string]*models.Class{},
		terms:    map[string]*models.AcademicTerm{},
		fees:     map[string]*models.TermFee{},
		balances: map[string]*models.StudentBalance{},
		vaults:   map[string]*models.ArrearsVault{},
	}
}

func (m *memLedger) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memLedger) addClass(id string, grade int) *models.Class {
	class := &models.Class{ID: id, Name: fmt.Sprintf("%dA", grade), Grade: grade}
	m.classes[id] = class
	return class
}

func (m *memLedger) addStudent(id, classID string, status models.StudentStatus) *models.StudentDetail {
	detail := &models.StudentDetail{Student: models.Student{
		ID:              id,
		AdmissionNumber: "ADM-" + id,
		FirstName:       "Student",
		LastName:        id,
		Status:          status,
		IsActive:        status.InSchool(),
	}}
	if classID != "" {
		class := m.classes[classID]
		detail.ClassID = &class.ID
		detail.ClassName = &class.Name
		grade := class.Grade
		detail.ClassGrade = &grade
	}
	m.students[id] = detail
	return detail
}

func (m *memLedger) moveStudent(id string, classID *string) {
	detail := m.students[id]
	detail.ClassID, detail.ClassName, detail.ClassGrade = nil, nil, nil
	if classID == nil {
		return
	}
	class := m.classes[*classID]
	grade := class.Grade
	detail.ClassID = &class.ID
	detail.ClassName = &class.Name
	detail.ClassGrade = &grade
}

func (m *memLedger) addTerm(id string, year, number int) *models.AcademicTerm {
	term := &models.AcademicTerm{ID: id, Year: year, TermNumber: number}
	m.terms[id] = term
	return term
}

func (m *memLedger) setFee(termID string, grade int, amount int64) {
	key := fmt.Sprintf("%s:%d", termID, grade)
	m.fees[key] = &models.TermFee{ID: m.nextID("fee"), TermID: termID, Grade: grade, Amount: decimal.NewFromInt(amount)}
}

func (m *memLedger) balance(studentID, termID string) *models.StudentBalance {
	return m.balances[studentID+":"+termID]
}

func (m *memLedger) recompute(studentID, termID string) (*models.StudentBalance, error) {
	balance := m.balance(studentID, termID)
	if balance == nil {
		return nil, fmt.Errorf("recompute amount paid: %w", sql.ErrNoRows)
	}
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.StudentID == studentID && p.TermID == termID && !p.Voided() {
			sum = sum.Add(p.Amount)
		}
	}
	balance.AmountPaid = sum
	balance.Refresh()
	copied := *balance
	return &copied, nil
}

func (m *memLedger) termBalances(studentID string) []models.TermBalance {
	var out []models.TermBalance
	for _, b := range m.balances {
		if b.StudentID != studentID {
			continue
		}
		term := m.terms[b.TermID]
		b.Refresh()
		out = append(out, models.TermBalance{StudentBalance: *b, Year: term.Year, TermNumber: term.TermNumber})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].TermNumber < out[j].TermNumber
	})
	return out
}

// memStudents adapts memLedger to the student repositories.
type memStudents struct{ *memLedger }

func (s memStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *detail
	return &copied, nil
}

func (s memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, d := range s.students {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (s memStudents) ListBillable(ctx context.Context) ([]models.StudentDetail, error) {
	var out []models.StudentDetail
	for _, d := range s.students {
		if d.IsActive {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNumber < out[j].AdmissionNumber })
	return out, nil
}

func (s memStudents) ListGraduationCandidates(ctx context.Context, grade int) ([]models.StudentDetail, error) {
	var out []models.StudentDetail
	for _, d := range s.students {
		if d.ClassGrade != nil && *d.ClassGrade == grade && d.Status.InSchool() {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNumber < out[j].AdmissionNumber })
	return out, nil
}

func (s memStudents) ListGraduatedDebtors(ctx context.Context) ([]models.StudentDetail, error) {
	var out []models.StudentDetail
	for _, d := range s.students {
		if d.Status == models.StudentStatusGraduated && !d.IsArchived {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s memStudents) ExistsByAdmissionNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	for _, d := range s.students {
		if d.AdmissionNumber == number && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s memStudents) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = s.nextID("stu")
	}
	s.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (s memStudents) Update(ctx context.Context, student *models.Student) error {
	s.students[student.ID].Student = *student
	return nil
}

func (s memStudents) UpdateClass(ctx context.Context, id string, classID *string) error {
	s.moveStudent(id, classID)
	return nil
}

func (s memStudents) UpdateStatus(ctx context.Context, student *models.Student) error {
	detail := s.students[student.ID]
	detail.Status = student.Status
	detail.IsActive = student.IsActive
	detail.IsArchived = student.IsArchived
	detail.GraduatedAt = student.GraduatedAt
	return nil
}

func (s memStudents) Graduate(ctx context.Context, student *models.Student, vault *models.ArrearsVault) error {
	if vault != nil {
		if err := (memVaults{s.memLedger}).Create(ctx, vault); err != nil {
			return err
		}
	}
	return s.UpdateStatus(ctx, student)
}

func (s memStudents) CountByClass(ctx context.Context, classID string) (int, error) {
	count := 0
	for _, d := range s.students {
		if d.ClassID != nil && *d.ClassID == classID {
			count++
		}
	}
	return count, nil
}

// memTerms adapts memLedger to term lookups.
type memTerms struct{ *memLedger }

func (t memTerms) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, ok := t.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *term
	return &copied, nil
}

func (t memTerms) FindCurrent(ctx context.Context) (*models.AcademicTerm, error) {
	for _, term := range t.terms {
		if term.IsCurrent {
			copied := *term
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

// memFees adapts memLedger to the fee repository.
type memFees struct{ *memLedger }

func (f memFees) ListByTerm(ctx context.Context, termID string) ([]models.TermFee, error) {
	var out []models.TermFee
	for _, fee := range f.fees {
		if fee.TermID == termID {
			out = append(out, *fee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Grade < out[j].Grade })
	return out, nil
}

func (f memFees) FindByTermAndGrade(ctx context.Context, termID string, grade int) (*models.TermFee, error) {
	fee, ok := f.fees[fmt.Sprintf("%s:%d", termID, grade)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *fee
	return &copied, nil
}

func (f memFees) CountPayments(ctx context.Context, termID string, grade int) (int, error) {
	count := 0
	for _, p := range f.payments {
		balance := f.balance(p.StudentID, p.TermID)
		if p.TermID == termID && !p.Voided() && balance != nil && billedUnder(balance, grade) {
			count++
		}
	}
	return count, nil
}

func (f memFees) Create(ctx context.Context, fee *models.TermFee) error {
	key := fmt.Sprintf("%s:%d", fee.TermID, fee.Grade)
	if _, ok := f.fees[key]; ok {
		return &pq.Error{Code: "23505"}
	}
	if fee.ID == "" {
		fee.ID = f.nextID("fee")
	}
	copied := *fee
	f.fees[key] = &copied
	return nil
}

func (f memFees) UpdateAmount(ctx context.Context, fee *models.TermFee) (int64, error) {
	f.fees[fmt.Sprintf("%s:%d", fee.TermID, fee.Grade)].Amount = fee.Amount
	var affected int64
	for _, b := range f.balances {
		if b.TermID == fee.TermID && billedUnder(b, fee.Grade) && f.students[b.StudentID].IsActive {
			b.TermFee = fee.Amount
			b.Refresh()
			affected++
		}
	}
	return affected, nil
}

func billedUnder(balance *models.StudentBalance, grade int) bool {
	return balance.Grade != nil && *balance.Grade == grade
}

// memBalances adapts memLedger to the balance repository.
type memBalances struct{ *memLedger }

func (b memBalances) FindByStudentAndTerm(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	balance := b.balance(studentID, termID)
	if balance == nil {
		return nil, sql.ErrNoRows
	}
	balance.Refresh()
	copied := *balance
	return &copied, nil
}

func (b memBalances) FindLatestBefore(ctx context.Context, studentID string, year, termNumber int) (*models.TermBalance, error) {
	rows := b.termBalances(studentID)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Year < year || (rows[i].Year == year && rows[i].TermNumber < termNumber) {
			return &rows[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (b memBalances) FindLatest(ctx context.Context, studentID string) (*models.TermBalance, error) {
	rows := b.termBalances(studentID)
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return &rows[len(rows)-1], nil
}

func (b memBalances) ListByStudent(ctx context.Context, studentID string) ([]models.TermBalance, error) {
	return b.termBalances(studentID), nil
}

func (b memBalances) ListStudentIDsByTermAndGrade(ctx context.Context, termID string, grade int) ([]string, error) {
	var ids []string
	for _, balance := range b.balances {
		if balance.TermID == termID && billedUnder(balance, grade) && b.students[balance.StudentID].IsActive {
			ids = append(ids, balance.StudentID)
		}
	}
	return ids, nil
}

func (b memBalances) Create(ctx context.Context, balance *models.StudentBalance) error {
	key := balance.StudentID + ":" + balance.TermID
	if _, ok := b.balances[key]; ok {
		return &pq.Error{Code: "23505"}
	}
	balance.ID = b.nextID("bal")
	balance.Refresh()
	copied := *balance
	if balance.Grade != nil {
		grade := *balance.Grade
		copied.Grade = &grade
	}
	b.balances[key] = &copied
	return nil
}

func (b memBalances) ApplyArrears(ctx context.Context, updates []repository.ArrearsUpdate) error {
	for _, u := range updates {
		for _, balance := range b.balances {
			if balance.ID == u.BalanceID {
				balance.PreviousArrears = u.PreviousArrears
				balance.Refresh()
			}
		}
	}
	return nil
}

func (b memBalances) ListArrears(ctx context.Context, termID string) ([]models.ArrearsEntry, error) {
	var out []models.ArrearsEntry
	for _, balance := range b.balances {
		balance.Refresh()
		if balance.TermID != termID || !balance.CurrentBalance.IsPositive() {
			continue
		}
		student := b.students[balance.StudentID]
		out = append(out, models.ArrearsEntry{
			StudentID:       student.ID,
			AdmissionNumber: student.AdmissionNumber,
			StudentName:     student.FullName(),
			ClassName:       student.ClassName,
			Status:          student.Status,
			TermFee:         balance.TermFee,
			PreviousArrears: balance.PreviousArrears,
			AmountPaid:      balance.AmountPaid,
			CurrentBalance:  balance.CurrentBalance,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNumber < out[j].AdmissionNumber })
	return out, nil
}

// memPayments adapts memLedger to the payment repository.
type memPayments struct{ *memLedger }

func (p memPayments) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, payment := range p.payments {
		if filter.StudentID != "" && payment.StudentID != filter.StudentID {
			continue
		}
		if !filter.IncludeVoided && payment.Voided() {
			continue
		}
		out = append(out, *payment)
	}
	return out, len(out), nil
}

func (p memPayments) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	out, _, err := p.List(ctx, models.PaymentFilter{StudentID: studentID})
	return out, err
}

func (p memPayments) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	for _, payment := range p.payments {
		if payment.ID == id {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (p memPayments) insert(payment *models.Payment) {
	if payment.ID == "" {
		payment.ID = p.nextID("pay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	copied := *payment
	p.payments = append(p.payments, &copied)
}

func (p memPayments) CreateAndRecompute(ctx context.Context, payment *models.Payment) (*models.StudentBalance, error) {
	if p.balance(payment.StudentID, payment.TermID) == nil {
		return nil, fmt.Errorf("recompute amount paid: %w", sql.ErrNoRows)
	}
	p.insert(payment)
	return p.recompute(payment.StudentID, payment.TermID)
}

func (p memPayments) VoidAndRecompute(ctx context.Context, payment *models.Payment, reason string) (*models.StudentBalance, error) {
	for _, stored := range p.payments {
		if stored.ID == payment.ID {
			if stored.Voided() {
				return nil, sql.ErrNoRows
			}
			now := time.Now().UTC()
			stored.VoidedAt = &now
			stored.VoidReason = &reason
			payment.VoidedAt = &now
			payment.VoidReason = &reason
			return p.recompute(payment.StudentID, payment.TermID)
		}
	}
	return nil, sql.ErrNoRows
}

// memVaults adapts memLedger to the vault repository.
type memVaults struct{ *memLedger }

func (v memVaults) List(ctx context.Context, filter models.VaultFilter) ([]models.ArrearsVault, int, error) {
	var out []models.ArrearsVault
	for _, vault := range v.vaults {
		if filter.Status == "" || vault.Status == filter.Status {
			out = append(out, *vault)
		}
	}
	return out, len(out), nil
}

func (v memVaults) FindByID(ctx context.Context, id string) (*models.ArrearsVault, error) {
	vault, ok := v.vaults[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *vault
	return &copied, nil
}

func (v memVaults) FindByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error) {
	for _, vault := range v.vaults {
		if vault.StudentID == studentID {
			copied := *vault
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v memVaults) Create(ctx context.Context, vault *models.ArrearsVault) error {
	if _, err := v.FindByStudent(ctx, vault.StudentID); err == nil {
		return fmt.Errorf("create vault: %w", repository.ErrVaultExists)
	}
	vault.ID = v.nextID("vault")
	vault.Status = models.VaultStatusFrozen
	vault.FrozenAt = time.Now().UTC()
	copied := *vault
	v.vaults[vault.ID] = &copied
	return nil
}

func (v memVaults) Settle(ctx context.Context, s repository.VaultSettlement) (*models.StudentBalance, error) {
	stored := v.vaults[s.Vault.ID]
	if stored.Settled() {
		return nil, repository.ErrVaultNotFrozen
	}
	payments := memPayments{v.memLedger}
	payments.insert(s.Payment)
	balance, err := v.recompute(s.Payment.StudentID, s.Payment.TermID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stored.Status = models.VaultStatusSettled
	stored.TransitionDate = &now
	stored.SettlementPaymentID = &s.Payment.ID
	*s.Vault = *stored
	if err := (memStudents{v.memLedger}).UpdateStatus(ctx, s.Student); err != nil {
		return nil, err
	}
	return balance, nil
}

func (v memVaults) CreateEscrow(ctx context.Context, escrow *models.VaultEscrow) error {
	escrow.ID = v.nextID("esc")
	copied := *escrow
	v.escrows = append(v.escrows, &copied)
	return nil
}

func (v memVaults) ListEscrows(ctx context.Context, vaultID string) ([]models.VaultEscrow, error) {
	var out []models.VaultEscrow
	for _, escrow := range v.escrows {
		if escrow.VaultID == vaultID {
			out = append(out, *escrow)
		}
	}
	return out, nil
}

// ledgerServices wires the real services over a memLedger.
type ledgerServices struct {
	ledger     *memLedger
	balances   *BalanceService
	payments   *PaymentService
	graduation *GraduationService
	vaults     *VaultService
	fees       *FeeService
	metrics    *MetricsService
}

func newLedgerServices(ledger *memLedger) *ledgerServices {
	metrics := NewMetricsService()
	balances := NewBalanceService(BalanceServiceParams{
		Balances: memBalances{ledger},
		Students: memStudents{ledger},
		Terms:    memTerms{ledger},
		Fees:     memFees{ledger},
		Payments: memPayments{ledger},
		Vaults:   memVaults{ledger},
		Metrics:  metrics,
	})
	graduation := NewGraduationService(GraduationServiceParams{
		Students: memStudents{ledger},
		Terms:    memTerms{ledger},
		Balances: balances,
		Latest:   memBalances{ledger},
		Metrics:  metrics,
		Config:   GraduationConfig{Grade: 7, FreezeDebtors: true},
	})
	payments := NewPaymentService(PaymentServiceParams{
		Payments: memPayments{ledger},
		Students: memStudents{ledger},
		Vaults:   memVaults{ledger},
		Balances: balances,
		Alumni:   graduation,
		Metrics:  metrics,
	})
	vaults := NewVaultService(VaultServiceParams{
		Vaults:   memVaults{ledger},
		Students: memStudents{ledger},
		Latest:   memBalances{ledger},
		Metrics:  metrics,
	})
	fees := NewFeeService(FeeServiceParams{
		Fees:     memFees{ledger},
		Terms:    memTerms{ledger},
		Balances: memBalances{ledger},
		Carrier:  balances,
	})
	return &ledgerServices{ledger: ledger, balances: balances, payments: payments, graduation: graduation, vaults: vaults, fees: fees, metrics: metrics}
}

// memClasses adapts memLedger to class lookups.
type memClasses struct{ *memLedger }

func (c memClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	class, ok := c.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *class
	return &copied, nil
}
