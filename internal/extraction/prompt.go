package extraction

const receiptPrompt = `You are reading a photo of a fuel station receipt. Extract these fields:

- station_name: the merchant or station brand printed at the top.
- seller_address, seller_city, seller_state, seller_zip: the station location. seller_state is the two letter US state code.
- purchase_date: the transaction date in YYYY-MM-DD format.
- fuel_type: "gasoline" or "diesel". Unleaded, regular, premium and E85 are gasoline.
- gallons: the quantity of fuel pumped, in gallons.
- price_per_gallon: the unit price of the fuel.
- total_amount: the total charged for the fuel.

Return ONLY a JSON object with exactly these keys. Use null for any field you cannot read.
Numbers must be plain numbers without currency symbols. Do not wrap the JSON in markdown.`
