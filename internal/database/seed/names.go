// Package seed generates demo donors, donations and requests.
package seed

import "github.com/bloodbank/bloodbank/internal/models"

// Surnames is a curated list of surnames for generating donors.
var Surnames = []string{
	"Adams", "Anderson", "Baker", "Barnes", "Bell", "Bennett", "Brooks",
	"Brown", "Butler", "Campbell", "Carter", "Chen", "Clark", "Collins",
	"Cooper", "Cruz", "Davis", "Diaz", "Edwards", "Evans", "Fisher",
	"Flores", "Foster", "Garcia", "Gonzalez", "Gray", "Green", "Hall",
	"Harris", "Hayes", "Henderson", "Hernandez", "Hill", "Howard", "Hughes",
	"Jackson", "James", "Jenkins", "Johnson", "Jones", "Kelly", "Kim",
	"King", "Lee", "Lewis", "Long", "Lopez", "Martin", "Martinez",
	"Miller", "Mitchell", "Moore", "Morgan", "Morris", "Murphy", "Nelson",
	"Nguyen", "Parker", "Patterson", "Perez", "Perry", "Peterson", "Phillips",
	"Powell", "Price", "Ramirez", "Reed", "Reyes", "Richardson", "Rivera",
	"Roberts", "Robinson", "Rodriguez", "Rogers", "Ross", "Russell", "Sanchez",
	"Sanders", "Scott", "Simmons", "Smith", "Stewart", "Sullivan", "Taylor",
	"Thomas", "Thompson", "Torres", "Turner", "Walker", "Ward", "Washington",
	"Watson", "White", "Williams", "Wilson", "Wood", "Wright", "Young",
}

// GivenNamesA and GivenNamesB are first-name pools; donors draw from either.
var GivenNamesA = []string{
	"Aaron", "Adam", "Adrian", "Alan", "Albert", "Alexander", "Andrew",
	"Anthony", "Arthur", "Benjamin", "Brandon", "Brian", "Bruce", "Carl",
	"Charles", "Christopher", "Daniel", "David", "Dennis", "Donald", "Douglas",
	"Edward", "Eric", "Eugene", "Frank", "Gary", "George", "Gerald",
	"Gregory", "Harold", "Henry", "Howard", "Jack", "James", "Jason",
	"Jeffrey", "Jeremy", "Jesse", "John", "Jonathan", "Joseph", "Joshua",
	"Justin", "Keith", "Kenneth", "Kevin", "Larry", "Lawrence", "Louis",
	"Marcus", "Mark", "Martin", "Matthew", "Michael", "Nathan", "Nicholas",
	"Oscar", "Patrick", "Paul", "Peter", "Philip", "Ralph", "Raymond",
	"Richard", "Robert", "Roger", "Ronald", "Roy", "Russell", "Ryan",
	"Samuel", "Scott", "Sean", "Stephen", "Steven", "Thomas", "Timothy",
	"Victor", "Vincent", "Walter", "Wayne", "William", "Zachary",
}

var GivenNamesB = []string{
	"Abigail", "Alice", "Amanda", "Amy", "Andrea", "Angela", "Anna",
	"Barbara", "Betty", "Beverly", "Brenda", "Carol", "Carolyn", "Catherine",
	"Charlotte", "Christina", "Christine", "Cynthia", "Deborah", "Denise", "Diana",
	"Diane", "Dorothy", "Elizabeth", "Emily", "Emma", "Frances", "Gloria",
	"Grace", "Hannah", "Heather", "Helen", "Isabella", "Jacqueline", "Janet",
	"Janice", "Jean", "Jennifer", "Jessica", "Joan", "Joyce", "Judith",
	"Julia", "Julie", "Karen", "Katherine", "Kathleen", "Kathryn", "Kelly",
	"Kimberly", "Laura", "Lauren", "Linda", "Lisa", "Lori", "Louise",
	"Madison", "Margaret", "Maria", "Marie", "Marilyn", "Martha", "Mary",
	"Megan", "Melissa", "Michelle", "Nancy", "Nicole", "Olivia", "Pamela",
	"Patricia", "Rachel", "Rebecca", "Rose", "Ruth", "Samantha", "Sandra",
	"Sara", "Sarah", "Sharon", "Shirley", "Sophia", "Stephanie", "Susan",
	"Teresa", "Theresa", "Tiffany", "Virginia", "Wanda", "Wendy",
}

// BloodTypeWeights approximates how common each blood type is among donors.
var BloodTypeWeights = []struct {
	Type   models.BloodType
	Weight int // out of 1000
}{
	{models.BloodTypeOPos, 374},
	{models.BloodTypeAPos, 316},
	{models.BloodTypeBPos, 102},
	{models.BloodTypeONeg, 67},
	{models.BloodTypeANeg, 63},
	{models.BloodTypeABPos, 34},
	{models.BloodTypeBNeg, 25},
	{models.BloodTypeABNeg, 19},
}

// CollectionSites are where donations are taken.
var CollectionSites = []models.DonationLocation{
	{BloodBank: "Central Blood Bank", Address: "12 Harbor Road"},
	{BloodBank: "Northside Donor Centre", Address: "88 Elm Avenue"},
	{BloodBank: "University Mobile Unit", Address: "1 Campus Green"},
}

// Hospitals receive requested blood.
var Hospitals = []models.Hospital{
	{Name: "General Hospital", Address: "400 Hill Street", ContactNumber: "5550199000"},
	{Name: "St. Mary's Medical Center", Address: "27 Chapel Lane", ContactNumber: "5550142210"},
	{Name: "Riverside Children's Hospital", Address: "3 Quay Street", ContactNumber: "5550177345"},
	{Name: "Eastgate Trauma Centre", Address: "910 Ring Road", ContactNumber: "5550163088"},
}

// RequestReasons are clinical reasons for a blood request.
var RequestReasons = []string{
	"Scheduled cardiac bypass surgery",
	"Trauma following road traffic accident",
	"Postpartum haemorrhage",
	"Chemotherapy-induced anaemia",
	"Sickle cell crisis transfusion",
	"Elective hip replacement",
	"Gastrointestinal bleed",
	"Liver transplant preparation",
}

// UrgencyWeights sets how often each urgency is requested.
var UrgencyWeights = []struct {
	Urgency models.Urgency
	Weight  int
}{
	{models.UrgencyLow, 20},
	{models.UrgencyMedium, 45},
	{models.UrgencyHigh, 25},
	{models.UrgencyCritical, 10},
}
