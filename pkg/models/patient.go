package models

// Patient is the owner of an order. Orders reference it by ID when one is
// known and always carry the display name.
type Patient struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Draft starts an order draft owned by p.
func (p Patient) Draft(deliveryAddress string, items ...OrderItem) OrderDraft {
	return OrderDraft{
		PatientID:       p.ID,
		PatientName:     p.Name,
		PatientAvatar:   p.Avatar,
		Items:           items,
		Status:          StatusPending,
		DeliveryAddress: deliveryAddress,
	}
}

// SeedOrders is the default list used when the store holds no orders yet.
func SeedOrders() []Order {
	return []Order{
		{
			ID:            "ORD-2026-003",
			PatientID:     "pat-amit-patel",
			PatientName:   "Amit Patel",
			PatientAvatar: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face",
			Items: []OrderItem{
				{Name: "Insulin Glargine", Quantity: 1, Price: 850},
				{Name: "Glucose Test Strips", Quantity: 2, Price: 450},
			},
			Total:                1750,
			Status:               StatusDispatched,
			Prescription:         true,
			PrescriptionVerified: true,
			OrderDate:            "30 Jan 2026, 04:45 PM",
			DeliveryAddress:      "Satellite, Ahmedabad",
		},
		{
			ID:            "ORD-2026-002",
			PatientID:     "pat-priya-sharma",
			PatientName:   "Priya Sharma",
			PatientAvatar: "https://images.unsplash.com/photo-1494790108377-be9c29b29330?w=150&h=150&fit=crop&crop=face",
			Items: []OrderItem{
				{Name: "Vitamin D3 1000IU", Quantity: 1, Price: 250},
				{Name: "Multivitamin Tablets", Quantity: 1, Price: 320},
			},
			Total:           570,
			Status:          StatusProcessing,
			OrderDate:       "31 Jan 2026, 09:15 AM",
			DeliveryAddress: "Koregaon Park, Pune",
		},
		{
			ID:            "ORD-2026-001",
			PatientID:     "pat-ravi-kumar",
			PatientName:   "Ravi Kumar",
			PatientAvatar: "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=150&h=150&fit=crop&crop=face",
			Items: []OrderItem{
				{Name: "Amlodipine 5mg", Quantity: 2, Price: 120},
				{Name: "Metformin 500mg", Quantity: 1, Price: 85},
			},
			Total:                325,
			Status:               StatusPending,
			Prescription:         true,
			PrescriptionVerified: true,
			OrderDate:            "31 Jan 2026, 10:30 AM",
			DeliveryAddress:      "Andheri West, Mumbai",
		},
	}
}
